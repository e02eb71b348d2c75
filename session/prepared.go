package session

import (
	"context"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/protocol"
)

// PreparedStatement is a server-side prepared statement handle, per spec
// §4.2/§3 Data Model: cached by SQL text per session, freed on reset or
// close.
type PreparedStatement struct {
	ID          uint32
	SQL         string
	ParamCount  int
	Columns     []*protocol.Column
	paramsBound bool
}

// Prepare issues COM_STMT_PREPARE, per spec §4.2. A session caches one
// PreparedStatement per distinct SQL text; re-preparing identical text
// returns the cached handle without a round trip.
func (s *Session) Prepare(ctx context.Context, sql string) (*PreparedStatement, error) {
	if cached, ok := s.preparedByText[sql]; ok {
		return cached, nil
	}

	s.resetSeq()
	if err := s.writePacket(protocol.EncodeComStmtPrepare(sql)); err != nil {
		return nil, err
	}

	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		s.Poison()
		return nil, err
	}
	s.seq = nextSeq

	if len(payload) > 0 && protocol.IsErrPacketHeader(payload[0]) {
		e, err := protocol.DecodeErrPacket(payload, s.capabilities)
		if err != nil {
			return nil, err
		}
		return nil, e.AsServerError()
	}

	r := protocol.NewReader(payload)
	if _, err := r.Byte(); err != nil { // status, always 0x00
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "prepare OK status", err)
	}
	stmtID, err := r.Uint32()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "prepare statement id", err)
	}
	numColumns, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "prepare column count", err)
	}
	numParams, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "prepare param count", err)
	}

	deprecateEOF := s.capabilities.Has(protocol.ClientDeprecateEOF)

	if numParams > 0 {
		for i := uint16(0); i < numParams; i++ {
			if _, _, err := s.readNextPacket(); err != nil {
				return nil, err
			}
		}
		if !deprecateEOF {
			if _, _, err := s.readNextPacket(); err != nil {
				return nil, err
			}
		}
	}

	var columns []*protocol.Column
	if numColumns > 0 {
		for i := uint16(0); i < numColumns; i++ {
			colPayload, _, err := s.readNextPacket()
			if err != nil {
				return nil, err
			}
			col, err := protocol.DecodeColumn(colPayload)
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
		}
		if !deprecateEOF {
			if _, _, err := s.readNextPacket(); err != nil {
				return nil, err
			}
		}
	}

	stmt := &PreparedStatement{ID: stmtID, SQL: sql, ParamCount: int(numParams), Columns: columns}
	s.preparedByText[sql] = stmt
	return stmt, nil
}

// readNextPacket reads one packet using and advancing the session's
// sequence counter, returning the raw payload.
func (s *Session) readNextPacket() ([]byte, byte, error) {
	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		s.Poison()
		return nil, 0, err
	}
	s.seq = nextSeq
	return payload, nextSeq, nil
}

// Execute issues COM_STMT_EXECUTE for stmt with the given bound
// parameters, per spec §4.2's binary protocol.
func (s *Session) Execute(ctx context.Context, stmt *PreparedStatement, params []protocol.BoundParam) (*OKResult, *ResultSet, error) {
	if len(params) != stmt.ParamCount {
		return nil, nil, errkind.NewUsageError(errkind.InvalidState, "parameter count mismatch")
	}

	s.resetSeq()
	newParamsBound := !stmt.paramsBound
	body := protocol.EncodeComStmtExecute(stmt.ID, protocol.CursorTypeNoCursor, params, newParamsBound)
	if err := s.writePacket(body); err != nil {
		return nil, nil, err
	}
	stmt.paramsBound = true

	return s.readQueryResponse(true)
}

// CloseStatement issues COM_STMT_CLOSE, which per spec §4.2 is
// fire-and-forget: no response packet follows.
func (s *Session) CloseStatement(stmt *PreparedStatement) error {
	s.resetSeq()
	if err := s.writePacket(protocol.EncodeComStmtClose(stmt.ID)); err != nil {
		return err
	}
	delete(s.preparedByText, stmt.SQL)
	return nil
}
