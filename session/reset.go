package session

import (
	"context"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/protocol"
)

// ResetOptions carries what Reset needs to fall back to COM_CHANGE_USER
// on servers too old to support COM_RESET_CONNECTION (pre-5.7.3), per
// spec §4.5's "Connection Reset" behavior.
type ResetOptions struct {
	Username       string
	Password       string
	Database       string
	AuthPluginName string
	AuthResponse   []byte
}

// Reset returns the session to pristine state via COM_RESET_CONNECTION,
// per spec §4.5. It clears the prepared-statement cache (the server frees
// its side of each statement as part of the reset) and the transaction
// flag. Implements pool.Conn.
func (s *Session) Reset() error {
	s.resetSeq()
	if err := s.writePacket(protocol.EncodeComResetConnection()); err != nil {
		return err
	}
	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		s.Poison()
		return err
	}
	s.seq = nextSeq

	if len(payload) > 0 && protocol.IsErrPacketHeader(payload[0]) {
		e, err := protocol.DecodeErrPacket(payload, s.capabilities)
		if err != nil {
			return err
		}
		return e.AsServerError()
	}
	if len(payload) == 0 || !protocol.IsOKPacketHeader(payload[0]) {
		return errkind.NewProtocolError(errkind.UnexpectedPacketType, "expected OK after COM_RESET_CONNECTION", nil)
	}

	for k := range s.preparedByText {
		delete(s.preparedByText, k)
	}
	s.inTransaction = false
	return nil
}

// ChangeUser issues COM_CHANGE_USER, the fallback reset path for servers
// predating COM_RESET_CONNECTION, per spec §4.5.
func (s *Session) ChangeUser(ctx context.Context, opts ResetOptions) error {
	s.resetSeq()
	body := protocol.EncodeComChangeUser(opts.Username, opts.AuthResponse, opts.Database, s.charset, opts.AuthPluginName)
	if err := s.writePacket(body); err != nil {
		return err
	}
	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		s.Poison()
		return err
	}
	s.seq = nextSeq

	if len(payload) > 0 && protocol.IsErrPacketHeader(payload[0]) {
		e, err := protocol.DecodeErrPacket(payload, s.capabilities)
		if err != nil {
			return err
		}
		return e.AsServerError()
	}
	if len(payload) == 0 || !protocol.IsOKPacketHeader(payload[0]) {
		return errkind.NewProtocolError(errkind.UnexpectedPacketType, "expected OK after COM_CHANGE_USER", nil)
	}

	for k := range s.preparedByText {
		delete(s.preparedByText, k)
	}
	s.inTransaction = false
	s.database = opts.Database
	return nil
}
