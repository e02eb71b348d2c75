package session

import (
	"context"
	"io"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/protocol"
)

// OKResult is the outcome of a command that produced no result set, per
// spec §4.2's text-protocol query flow.
type OKResult struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
	Info         string
}

// MoreResultsExists reports whether another result follows this one, the
// signal a multi-statement batch (spec §8 scenario 6) chains on.
func (r OKResult) MoreResultsExists() bool {
	return r.StatusFlags&protocol.StatusMoreResultsExists != 0
}

// ResultSet streams the rows of one query result, per spec §9's "lazy,
// single-pass, non-restartable sequence bound to the session lease".
type ResultSet struct {
	Columns []*protocol.Column

	session      *Session
	deprecateEOF bool
	done         bool
	moreResults  bool
	binary       bool
}

// MoreResultsExists reports whether another statement's result follows
// this one in a multi-statement batch.
func (rs *ResultSet) MoreResultsExists() bool { return rs.moreResults }

// Next reads and decodes the next row, returning io.EOF once the result
// set's terminal OK/EOF has been consumed. The session must not be used
// for anything else until Next returns io.EOF or an error, per the
// single-owner invariant.
func (rs *ResultSet) Next() ([]protocol.Value, error) {
	if rs.done {
		return nil, io.EOF
	}

	payload, nextSeq, err := rs.session.pr.ReadPacket(rs.session.seq)
	if err != nil {
		rs.session.Poison()
		return nil, err
	}
	rs.session.seq = nextSeq

	if len(payload) == 0 {
		rs.session.Poison()
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "empty row packet", nil)
	}

	if protocol.IsErrPacketHeader(payload[0]) {
		e, err := protocol.DecodeErrPacket(payload, rs.session.capabilities)
		if err != nil {
			return nil, err
		}
		rs.done = true
		return nil, e.AsServerError()
	}

	// Under ClientDeprecateEOF the rows end with an OK packet carrying the
	// 0xfe header; a 0x00 first byte is a row (binary rows always lead
	// with it), and only a packet of the maximum size can start with 0xfe.
	if rs.deprecateEOF && payload[0] == 0xfe && len(payload) < protocol.MaxPayloadLen {
		ok, err := protocol.DecodeOKPacket(payload, rs.session.capabilities)
		if err != nil {
			return nil, err
		}
		rs.done = true
		rs.moreResults = ok.MoreResultsExists()
		rs.session.inTransaction = ok.StatusFlags&protocol.StatusInTrans != 0
		return nil, io.EOF
	}

	if !rs.deprecateEOF && protocol.IsEOFPacketHeader(payload[0], len(payload)) {
		eof, err := protocol.DecodeEOFPacket(payload, rs.session.capabilities)
		if err != nil {
			return nil, err
		}
		rs.done = true
		rs.moreResults = eof.MoreResultsExists()
		rs.session.inTransaction = eof.StatusFlags&protocol.StatusInTrans != 0
		return nil, io.EOF
	}

	if rs.binary {
		return protocol.DecodeBinaryRow(payload, rs.Columns, rs.session.guidFormat)
	}
	return protocol.DecodeTextRow(payload, rs.Columns, rs.session.guidFormat)
}

// Close drains any unread rows so the session lease can be safely
// returned, per spec §5's "a dropped task must not leave a half-read
// frame in the transport".
func (rs *ResultSet) Close() error {
	for {
		_, err := rs.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if _, ok := err.(*errkind.ServerError); ok {
				return nil
			}
			return err
		}
	}
}

// QueryText executes sql via COM_QUERY, per spec §4.2's text-protocol
// query flow. Exactly one of the returned values is non-nil.
func (s *Session) QueryText(ctx context.Context, sql string) (*OKResult, *ResultSet, error) {
	s.resetSeq()
	if err := s.writePacket(protocol.EncodeComQuery(sql)); err != nil {
		return nil, nil, err
	}
	return s.readQueryResponse(false)
}

func (s *Session) readQueryResponse(binary bool) (*OKResult, *ResultSet, error) {
	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		s.Poison()
		return nil, nil, err
	}
	s.seq = nextSeq

	if len(payload) == 0 {
		s.Poison()
		return nil, nil, errkind.NewProtocolError(errkind.MalformedPacket, "empty query response", nil)
	}

	switch {
	case protocol.IsOKPacketHeader(payload[0]):
		ok, err := protocol.DecodeOKPacket(payload, s.capabilities)
		if err != nil {
			return nil, nil, err
		}
		s.inTransaction = ok.StatusFlags&protocol.StatusInTrans != 0
		return &OKResult{
			AffectedRows: ok.AffectedRows,
			LastInsertID: ok.LastInsertID,
			StatusFlags:  ok.StatusFlags,
			Warnings:     ok.Warnings,
			Info:         ok.Info,
		}, nil, nil

	case protocol.IsErrPacketHeader(payload[0]):
		e, err := protocol.DecodeErrPacket(payload, s.capabilities)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, e.AsServerError()

	case payload[0] == 0xfb:
		// LOCAL INFILE request. Per the design's stated default policy:
		// respond with an empty packet (aborting the load) and surface a
		// UsageError to the caller; the session itself stays usable.
		if err := s.writePacket(nil); err != nil {
			return nil, nil, err
		}
		okPayload, nextSeq, err := s.pr.ReadPacket(s.seq)
		if err != nil {
			s.Poison()
			return nil, nil, err
		}
		s.seq = nextSeq
		if len(okPayload) > 0 && protocol.IsErrPacketHeader(okPayload[0]) {
			e, err := protocol.DecodeErrPacket(okPayload, s.capabilities)
			if err != nil {
				return nil, nil, err
			}
			return nil, nil, e.AsServerError()
		}
		return nil, nil, errkind.NewUsageError(errkind.InvalidState, "LOCAL INFILE requested but no file source configured")

	default:
		columnCount, err := protocol.DecodeResultSetHeader(payload)
		if err != nil {
			return nil, nil, err
		}
		rs, err := s.readColumns(columnCount, binary)
		if err != nil {
			return nil, nil, err
		}
		return nil, rs, nil
	}
}

// ReadNextResult reads the next statement's result within a
// multi-statement batch, per spec §8 scenario 6. Call only when the
// previous result (OKResult or ResultSet) reported MoreResultsExists();
// the wire protocol gives no other signal that a further result follows.
func (s *Session) ReadNextResult(ctx context.Context) (*OKResult, *ResultSet, error) {
	return s.readQueryResponse(false)
}

// readColumns reads columnCount Column Definition packets (and the
// trailing EOF when !DEPRECATE_EOF), per spec §4.2, producing a ResultSet
// ready for Next() to stream rows from.
func (s *Session) readColumns(columnCount uint64, binary bool) (*ResultSet, error) {
	columns := make([]*protocol.Column, 0, columnCount)
	for i := uint64(0); i < columnCount; i++ {
		payload, nextSeq, err := s.pr.ReadPacket(s.seq)
		if err != nil {
			s.Poison()
			return nil, err
		}
		s.seq = nextSeq
		col, err := protocol.DecodeColumn(payload)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	deprecateEOF := s.capabilities.Has(protocol.ClientDeprecateEOF)
	if !deprecateEOF {
		payload, nextSeq, err := s.pr.ReadPacket(s.seq)
		if err != nil {
			s.Poison()
			return nil, err
		}
		s.seq = nextSeq
		if len(payload) == 0 || !protocol.IsEOFPacketHeader(payload[0], len(payload)) {
			return nil, errkind.NewProtocolError(errkind.UnexpectedPacketType, "expected EOF after column definitions", nil)
		}
	}

	return &ResultSet{
		Columns:      columns,
		session:      s,
		deprecateEOF: deprecateEOF,
		binary:       binary,
	}, nil
}
