package protocol

import (
	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Status flags carried in OK/EOF packets, the subset the core inspects.
const (
	StatusInTrans            uint16 = 0x0001
	StatusAutocommit         uint16 = 0x0002
	StatusMoreResultsExists  uint16 = 0x0008
	StatusNoGoodIndexUsed    uint16 = 0x0010
	StatusNoIndexUsed        uint16 = 0x0020
	StatusCursorExists       uint16 = 0x0040
	StatusLastRowSent        uint16 = 0x0080
	StatusDBDropped          uint16 = 0x0100
	StatusBackslashEscapes   uint16 = 0x0200
	StatusMetadataChanged    uint16 = 0x0400
	StatusQueryWasSlow       uint16 = 0x0800
	StatusPSOutParams        uint16 = 0x1000
	StatusInTransReadonly    uint16 = 0x2000
	StatusSessionStateChanged uint16 = 0x4000
)

// OKPacket is the generic success response, per spec §4.3.
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
	SessionStateChanges []byte
}

// MoreResultsExists reports whether StatusMoreResultsExists is set, the
// signal COM_QUERY's multi-statement/stored-procedure handling relies on.
func (ok *OKPacket) MoreResultsExists() bool {
	return ok.StatusFlags&StatusMoreResultsExists != 0
}

// DecodeOKPacket parses an OK packet payload. The leading header byte
// (0x00 or 0xfe when used as EOF-substitute under ClientDeprecateEOF) has
// already been identified by the caller's dispatch but is still present
// here and is consumed first.
func DecodeOKPacket(payload []byte, capabilities CapabilityFlags) (*OKPacket, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK header", err)
	}

	affectedRows, _, err := r.LengthEncodedInt()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK affected rows", err)
	}
	lastInsertID, _, err := r.LengthEncodedInt()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK last insert id", err)
	}

	ok := &OKPacket{AffectedRows: affectedRows, LastInsertID: lastInsertID}

	if capabilities.Has(ClientProtocol41) {
		ok.StatusFlags, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK status flags", err)
		}
		ok.Warnings, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK warnings", err)
		}
	} else if capabilities.Has(ClientTransactions) {
		ok.StatusFlags, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK status flags", err)
		}
	}

	if capabilities.Has(ClientSessionTrack) {
		info, _, err := r.LengthEncodedString()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK info", err)
		}
		ok.Info = info
		if ok.StatusFlags&StatusSessionStateChanged != 0 && r.Len() > 0 {
			changes, _, err := r.LengthEncodedBytes()
			if err != nil {
				return nil, errkind.NewProtocolError(errkind.MalformedPacket, "OK session state changes", err)
			}
			ok.SessionStateChanges = changes
		}
	} else {
		ok.Info = r.RestOfPacketString()
	}

	return ok, nil
}

// IsOKPacketHeader reports whether firstByte is 0x00, the header of an OK
// command response. It does not recognize the 0xfe header an OK carries
// when it ends a result set under ClientDeprecateEOF; callers check for
// that form themselves, using the payload length.
func IsOKPacketHeader(firstByte byte) bool {
	return firstByte == 0x00
}

// ErrPacket is the generic failure response, per spec §4.3/§7.
type ErrPacket struct {
	Code         uint16
	SQLStateMarker byte
	SQLState     string
	Message      string
}

// IsErrPacketHeader reports whether the first payload byte marks an ERR
// packet.
func IsErrPacketHeader(firstByte byte) bool {
	return firstByte == 0xff
}

// DecodeErrPacket parses an ERR packet payload.
func DecodeErrPacket(payload []byte, capabilities CapabilityFlags) (*ErrPacket, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil { // 0xff marker
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "ERR header", err)
	}

	code, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "ERR code", err)
	}

	e := &ErrPacket{Code: code}

	if capabilities.Has(ClientProtocol41) {
		marker, err := r.Byte()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "ERR sqlstate marker", err)
		}
		e.SQLStateMarker = marker
		state, err := r.FixedBytes(5)
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "ERR sqlstate", err)
		}
		e.SQLState = string(state)
	}

	e.Message = r.RestOfPacketString()
	return e, nil
}

// AsServerError converts a decoded ERR packet to the public error type.
func (e *ErrPacket) AsServerError() *errkind.ServerError {
	return errkind.NewServerError(e.Code, e.SQLState, e.Message)
}

// EOFPacket is the legacy end-of-rows/end-of-params marker. Under
// ClientDeprecateEOF, an OKPacket takes its place; the EOF wire format
// survives only for servers/paths that don't negotiate that capability.
type EOFPacket struct {
	Warnings    uint16
	StatusFlags uint16
}

// IsEOFPacketHeader reports whether firstByte and the payload length are
// consistent with the legacy EOF packet (0xfe marker, payload < 9 bytes —
// the bound the protocol uses to disambiguate EOF from a length-encoded
// row value that happens to start with 0xfe).
func IsEOFPacketHeader(firstByte byte, payloadLen int) bool {
	return firstByte == 0xfe && payloadLen < 9
}

// DecodeEOFPacket parses a legacy EOF packet payload.
func DecodeEOFPacket(payload []byte, capabilities CapabilityFlags) (*EOFPacket, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil { // 0xfe marker
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "EOF header", err)
	}
	eof := &EOFPacket{}
	if capabilities.Has(ClientProtocol41) {
		var err error
		eof.Warnings, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "EOF warnings", err)
		}
		eof.StatusFlags, err = r.Uint16()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, "EOF status flags", err)
		}
	}
	return eof, nil
}

// MoreResultsExists reports whether StatusMoreResultsExists is set.
func (e *EOFPacket) MoreResultsExists() bool {
	return e.StatusFlags&StatusMoreResultsExists != 0
}
