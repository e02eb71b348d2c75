package protocol

// Command is the COM_* byte that opens every client-to-server request
// packet, per spec §4.6. Grounded on the constant table in the teacher's
// server/common/constant.go (itself credited there to vitess/go-mysqlstack).
type Command byte

const (
	ComSleep            Command = 0x00
	ComQuit             Command = 0x01
	ComInitDB           Command = 0x02
	ComQuery            Command = 0x03
	ComFieldList        Command = 0x04
	ComCreateDB         Command = 0x05
	ComDropDB           Command = 0x06
	ComRefresh          Command = 0x07
	ComShutdown         Command = 0x08
	ComStatistics       Command = 0x09
	ComProcessInfo      Command = 0x0a
	ComConnect          Command = 0x0b
	ComProcessKill      Command = 0x0c
	ComDebug            Command = 0x0d
	ComPing             Command = 0x0e
	ComTime             Command = 0x0f
	ComDelayedInsert    Command = 0x10
	ComChangeUser       Command = 0x11
	ComBinlogDump       Command = 0x12
	ComTableDump        Command = 0x13
	ComConnectOut       Command = 0x14
	ComRegisterSlave    Command = 0x15
	ComStmtPrepare      Command = 0x16
	ComStmtExecute      Command = 0x17
	ComStmtSendLongData Command = 0x18
	ComStmtClose        Command = 0x19
	ComStmtReset        Command = 0x1a
	ComSetOption        Command = 0x1b
	ComStmtFetch        Command = 0x1c
	ComResetConnection  Command = 0x1f
)

// EncodeComQuit builds the COM_QUIT request body.
func EncodeComQuit() []byte {
	return []byte{byte(ComQuit)}
}

// EncodeComPing builds the COM_PING request body.
func EncodeComPing() []byte {
	return []byte{byte(ComPing)}
}

// EncodeComInitDB builds the COM_INIT_DB request body, per spec §4.6.
func EncodeComInitDB(schema string) []byte {
	w := NewWriter(1 + len(schema))
	w.Byte(byte(ComInitDB))
	w.RawBytes([]byte(schema))
	return w.Bytes()
}

// EncodeComQuery builds the COM_QUERY request body.
func EncodeComQuery(sql string) []byte {
	w := NewWriter(1 + len(sql))
	w.Byte(byte(ComQuery))
	w.RawBytes([]byte(sql))
	return w.Bytes()
}

// EncodeComResetConnection builds the COM_RESET_CONNECTION request body,
// per spec §4.5's "Connection Reset" pool behavior.
func EncodeComResetConnection() []byte {
	return []byte{byte(ComResetConnection)}
}

// EncodeComProcessKill builds the COM_PROCESS_KILL request body, which
// ends the whole target connection. The sidecar cancellation session does
// not use it; it sends a "KILL QUERY n" text query instead.
func EncodeComProcessKill(connectionID uint32) []byte {
	w := NewWriter(5)
	w.Byte(byte(ComProcessKill))
	w.Uint32(connectionID)
	return w.Bytes()
}

// EncodeComStmtPrepare builds the COM_STMT_PREPARE request body.
func EncodeComStmtPrepare(sql string) []byte {
	w := NewWriter(1 + len(sql))
	w.Byte(byte(ComStmtPrepare))
	w.RawBytes([]byte(sql))
	return w.Bytes()
}

// EncodeComStmtClose builds the COM_STMT_CLOSE request body.
func EncodeComStmtClose(statementID uint32) []byte {
	w := NewWriter(5)
	w.Byte(byte(ComStmtClose))
	w.Uint32(statementID)
	return w.Bytes()
}

// StmtExecuteFlags is the single flags byte in COM_STMT_EXECUTE; only
// CursorTypeNoCursor is used outside server-side cursor support, which is
// out of scope.
type StmtExecuteFlags byte

const (
	CursorTypeNoCursor StmtExecuteFlags = 0x00
)

// BoundParam is one placeholder value bound for COM_STMT_EXECUTE.
type BoundParam struct {
	Type     ColumnType
	Unsigned bool
	IsNull   bool
	Value    []byte // pre-encoded wire bytes, empty when IsNull
}

// EncodeComStmtExecute builds the COM_STMT_EXECUTE request body, per spec
// §4.6. newParamsBound should be true whenever the statement's parameter
// types may have changed since the last execution (always true the first
// time).
func EncodeComStmtExecute(statementID uint32, flags StmtExecuteFlags, params []BoundParam, newParamsBound bool) []byte {
	w := NewWriter(32 + len(params)*8)
	w.Byte(byte(ComStmtExecute))
	w.Uint32(statementID)
	w.Byte(byte(flags))
	w.Uint32(1) // iteration-count, always 1

	if len(params) > 0 {
		bitmapLen := (len(params) + 7) / 8
		bitmap := make([]byte, bitmapLen)
		for i, p := range params {
			if p.IsNull {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		w.RawBytes(bitmap)

		if newParamsBound {
			w.Byte(1)
			for _, p := range params {
				w.Byte(byte(p.Type))
				// Second byte is the parameter flag byte: 0x80 marks unsigned.
				if p.Unsigned {
					w.Byte(0x80)
				} else {
					w.Byte(0)
				}
			}
		} else {
			w.Byte(0)
		}

		for _, p := range params {
			if !p.IsNull {
				w.RawBytes(p.Value)
			}
		}
	}

	return w.Bytes()
}

// EncodeComChangeUser builds the COM_CHANGE_USER request body, per spec
// §4.5's reset-on-return fallback when COM_RESET_CONNECTION isn't
// available (pre-5.7.3 servers).
func EncodeComChangeUser(username string, authResponse []byte, database string, charset byte, authPluginName string) []byte {
	w := NewWriter(32 + len(username) + len(authResponse) + len(database))
	w.Byte(byte(ComChangeUser))
	w.NullTerminatedString(username)
	w.Byte(byte(len(authResponse)))
	w.RawBytes(authResponse)
	w.NullTerminatedString(database)
	w.Uint16(uint16(charset))
	w.NullTerminatedString(authPluginName)
	return w.Bytes()
}
