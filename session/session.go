// Package session implements the protocol state machine for a single
// logical connection to a MySQL server, per spec §4.2: the handshake,
// the sequence-id-disciplined command flow, and the reset/ping/quit
// housekeeping commands the pool drives between leases.
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/xmysql-driver/auth"
	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/protocol"
	"github.com/zhukovaskychina/xmysql-driver/transport"
	"github.com/zhukovaskychina/xmysql-driver/xlog"
)

// State is a Session's position in the protocol state machine, per spec
// §4.2: Disconnected -> Connecting -> Handshaking -> AuthSwitching* ->
// Ready -> Querying -> StreamingResult -> Ready -> ... -> Closed | Failed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateAuthSwitching
	StateReady
	StateQuerying
	StateStreamingResult
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateAuthSwitching:
		return "auth_switching"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	case StateStreamingResult:
		return "streaming_result"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectOptions configures a single Session's handshake, per spec §6.
type ConnectOptions struct {
	Username string
	Password string
	Database string

	TLSMode   transport.TLSMode
	TLSConfig *tls.Config

	DesiredCapabilities protocol.CapabilityFlags
	Charset             byte
	ConnectAttrs        []protocol.ConnectAttr

	// UseCompression requests CLIENT_COMPRESS during the handshake; when
	// the server agrees, the session's packet stream is wrapped in the
	// zlib compression envelope (protocol.CompressedReader/Writer) for
	// the life of the connection, per spec §6's "Use Compression" DSN key.
	UseCompression bool

	// GuidFormat selects how GUID-shaped (BINARY(16)) columns decode, per
	// spec §4.3. Zero value is GuidFormatCharString.
	GuidFormat protocol.GuidFormat

	ConnectTimeout time.Duration

	// ServerPublicKey supplies the RSA public key PEM bytes for
	// caching_sha2_password/sha256_password full-auth, when the server
	// is not asked to send its own (e.g. a pinned operator-provided key).
	// Nil means "request the server's key over the wire".
	ServerPublicKey []byte
}

// Session is a single logical connection, owned by at most one
// executor/caller at a time, per the spec's Data Model invariant. Apart
// from mu around the poisoned flag it has no internal locking:
// single-owner by construction.
type Session struct {
	conn transport.Conn

	pr *protocol.PacketReader
	pw *protocol.PacketWriter

	seq byte

	capabilities protocol.CapabilityFlags
	charset      byte
	threadID     uint32
	serverVer    string

	database string

	guidFormat protocol.GuidFormat

	inTransaction bool
	poisoned      bool

	preparedByText map[string]*PreparedStatement

	createdAt time.Time
	lastUsed  time.Time

	log *xlog.Logger

	mu sync.Mutex // guards poisoned, which the executor's timeout path sets while a command goroutine may still run
}

// ThreadID returns the server-assigned connection id, needed to issue
// KILL QUERY against this session from a sidecar session, per spec §4.2's
// cancellation design.
func (s *Session) ThreadID() uint32 { return s.threadID }

// Capabilities returns the negotiated capability set.
func (s *Session) Capabilities() protocol.CapabilityFlags { return s.capabilities }

// Database returns the currently selected schema.
func (s *Session) Database() string { return s.database }

// InTransaction reports whether the last known status flags indicated an
// open transaction, per the Data Model invariant that such a session is
// never pooled un-reset.
func (s *Session) InTransaction() bool { return s.inTransaction }

// Poisoned reports whether this session must not be reused, per spec §7.
func (s *Session) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// Poison marks the session unfit for reuse; called within this package
// when a packet read or write fails (and on some malformed packets), and
// by the executor when a timed-out command is not cleared in time.
func (s *Session) Poison() {
	s.mu.Lock()
	s.poisoned = true
	s.mu.Unlock()
}

// Connect dials addr, performs the handshake, and returns a Ready
// Session, per spec §4.2 steps 1-5.
func Connect(ctx context.Context, network, addr string, opts ConnectOptions, log *xlog.Logger) (*Session, error) {
	if log == nil {
		log = xlog.NewStderr("session", "info")
	}

	dialer := &transport.Dialer{
		Network:     network,
		TLSMode:     opts.TLSMode,
		TLSConfig:   opts.TLSConfig,
		ConnTimeout: opts.ConnectTimeout,
	}
	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return ConnectOverConn(ctx, conn, opts, log)
}

// ConnectOverConn performs the handshake (spec §4.2 steps 1-5) over an
// already-established transport.Conn, rather than dialing one itself. This
// is what Connect delegates to once it has a conn; callers that already
// hold a non-TCP or pre-negotiated connection (e.g. a Unix socket, or a
// test harness driving both halves of a net.Pipe) can call it directly.
func ConnectOverConn(ctx context.Context, conn transport.Conn, opts ConnectOptions, log *xlog.Logger) (*Session, error) {
	if log == nil {
		log = xlog.NewStderr("session", "info")
	}

	s := &Session{
		conn:           conn,
		pr:             protocol.NewPacketReader(conn),
		pw:             protocol.NewPacketWriter(conn),
		preparedByText: make(map[string]*PreparedStatement),
		createdAt:      time.Now(),
		lastUsed:       time.Now(),
		log:            log,
		charset:        opts.Charset,
		database:       opts.Database,
		guidFormat:     opts.GuidFormat,
	}

	if err := s.handshake(ctx, opts); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// handshake drives steps 1-5 of spec §4.2.
func (s *Session) handshake(ctx context.Context, opts ConnectOptions) error {
	payload, nextSeq, err := s.pr.ReadPacket(0)
	if err != nil {
		return err
	}
	s.seq = nextSeq

	greeting, err := protocol.DecodeInitialHandshake(payload)
	if err != nil {
		return err
	}
	if greeting.ProtocolVersion != 10 {
		return errkind.NewProtocolError(errkind.UnexpectedPacketType,
			fmt.Sprintf("unsupported handshake protocol version %d", greeting.ProtocolVersion), nil)
	}
	s.threadID = greeting.ConnectionID
	s.serverVer = greeting.ServerVersion

	desired := opts.DesiredCapabilities
	if desired == 0 {
		desired = protocol.DefaultClientCapabilities
	}
	wantTLS := opts.TLSMode == transport.TLSRequired || opts.TLSMode == transport.TLSVerifyCA ||
		opts.TLSMode == transport.TLSVerifyFull || opts.TLSMode == transport.TLSPreferred
	if wantTLS && greeting.Capabilities.Has(protocol.ClientSSL) {
		desired |= protocol.ClientSSL
	}
	if opts.UseCompression && greeting.Capabilities.Has(protocol.ClientCompress) {
		desired |= protocol.ClientCompress
	}

	effective := protocol.Intersect(desired, greeting.Capabilities)
	if !effective.Has(protocol.ClientProtocol41) || !effective.Has(protocol.ClientSecureConnection) {
		return errkind.NewAuthError("server does not support protocol 4.1 / secure connection", nil)
	}
	s.capabilities = effective

	if effective.Has(protocol.ClientSSL) {
		if err := s.upgradeToTLS(opts); err != nil {
			return err
		}
	}
	if effective.Has(protocol.ClientCompress) {
		s.pr = protocol.NewPacketReader(protocol.NewCompressedReader(s.conn))
		s.pw = protocol.NewPacketWriter(protocol.NewCompressedWriter(s.conn))
	}

	pluginName := greeting.AuthPluginName
	if pluginName == "" {
		pluginName = "mysql_native_password"
	}
	plugin, err := auth.Lookup(pluginName)
	if err != nil {
		return err
	}
	if pluginName == "mysql_clear_password" && !s.clearPasswordAllowed() {
		return errkind.NewAuthError("mysql_clear_password refused: connection is neither TLS nor a Unix socket", nil)
	}

	authResponse, err := plugin.InitialResponse(opts.Password, greeting.AuthPluginData)
	if err != nil {
		return errkind.NewAuthError("computing initial auth response", err)
	}

	resp := &protocol.HandshakeResponse41{
		ClientCapabilities: s.capabilities,
		MaxPacketSize:      1 << 30,
		CharacterSet:       opts.Charset,
		Username:           opts.Username,
		AuthResponse:       authResponse,
		Database:           opts.Database,
		AuthPluginName:     pluginName,
		ConnectAttrs:       opts.ConnectAttrs,
	}
	if opts.Database != "" {
		s.capabilities |= protocol.ClientConnectWithDB
		resp.ClientCapabilities = s.capabilities
	}

	if err := s.writePacket(resp.Encode()); err != nil {
		return err
	}

	return s.authLoop(plugin, opts, pluginName, greeting.AuthPluginData)
}

func (s *Session) upgradeToTLS(opts ConnectOptions) error {
	w := protocol.NewWriter(32)
	w.Uint32(uint32(s.capabilities))
	w.Uint32(1 << 30)
	w.Byte(opts.Charset)
	w.Zero(23)
	if err := s.writePacket(w.Bytes()); err != nil {
		return err
	}

	tlsConn, err := transport.UpgradeTLS(s.conn, opts.TLSConfig)
	if err != nil {
		return err
	}
	s.conn = tlsConn
	s.pr = protocol.NewPacketReader(tlsConn)
	s.pw = protocol.NewPacketWriter(tlsConn)
	return nil
}

// clearPasswordAllowed reports whether sending mysql_clear_password's
// verbatim cleartext response is permitted on this connection, per spec
// §4.4: only over TLS or a Unix domain socket, never plain TCP.
func (s *Session) clearPasswordAllowed() bool {
	if s.capabilities.Has(protocol.ClientSSL) {
		return true
	}
	if la := s.conn.LocalAddr(); la != nil && la.Network() == "unix" {
		return true
	}
	return false
}

// authLoop implements step 5 of spec §4.2: OK -> Ready, ERR -> Failed,
// AuthSwitch -> re-dispatch to the named plugin, AuthMoreData -> feed the
// current plugin's Continue.
func (s *Session) authLoop(plugin auth.Plugin, opts ConnectOptions, pluginName string, scramble []byte) error {
	for {
		payload, nextSeq, err := s.pr.ReadPacket(s.seq)
		if err != nil {
			return err
		}
		s.seq = nextSeq

		if len(payload) == 0 {
			return errkind.NewProtocolError(errkind.MalformedPacket, "empty auth response packet", nil)
		}

		switch {
		case protocol.IsOKPacketHeader(payload[0]):
			ok, err := protocol.DecodeOKPacket(payload, s.capabilities)
			if err != nil {
				return err
			}
			s.inTransaction = ok.StatusFlags&protocol.StatusInTrans != 0
			return nil

		case protocol.IsErrPacketHeader(payload[0]):
			errPkt, err := protocol.DecodeErrPacket(payload, s.capabilities)
			if err != nil {
				return err
			}
			return errkind.NewAuthError("server rejected authentication", errPkt.AsServerError())

		case payload[0] == 0xfe:
			sw, err := protocol.DecodeAuthSwitchRequest(payload)
			if err != nil {
				return err
			}
			pluginName = sw.PluginName
			scramble = sw.PluginData
			plugin, err = auth.Lookup(pluginName)
			if err != nil {
				return err
			}
			if pluginName == "mysql_clear_password" && !s.clearPasswordAllowed() {
				return errkind.NewAuthError("mysql_clear_password refused: connection is neither TLS nor a Unix socket", nil)
			}
			resp, err := plugin.InitialResponse(opts.Password, scramble)
			if err != nil {
				return errkind.NewAuthError("computing auth-switch response", err)
			}
			if err := s.writePacket(protocol.EncodeAuthSwitchResponse(resp)); err != nil {
				return err
			}

		case payload[0] == 0x01:
			more, err := protocol.DecodeAuthMoreData(payload)
			if err != nil {
				return err
			}
			ex, ok := plugin.(auth.Exchanger)
			if !ok {
				return errkind.NewAuthError("plugin "+pluginName+" does not support AuthMoreData", nil)
			}
			keyFn := func() ([]byte, error) {
				if opts.ServerPublicKey != nil {
					return opts.ServerPublicKey, nil
				}
				return s.requestServerPublicKey()
			}
			resp, done, err := ex.Continue(more.Data, opts.Password, scramble, keyFn)
			if err != nil {
				return errkind.NewAuthError("auth plugin continuation failed", err)
			}
			if !done && resp != nil {
				if err := s.writePacket(resp); err != nil {
					return err
				}
			} else if resp != nil {
				if err := s.writePacket(resp); err != nil {
					return err
				}
			}

		default:
			return errkind.NewProtocolError(errkind.UnexpectedPacketType, "unexpected byte in auth phase", nil)
		}
	}
}

// requestServerPublicKey sends the caching_sha2_password/sha256_password
// public-key-request byte (0x02) and reads back the PEM-encoded key.
func (s *Session) requestServerPublicKey() ([]byte, error) {
	if err := s.writePacket([]byte{0x02}); err != nil {
		return nil, err
	}
	payload, nextSeq, err := s.pr.ReadPacket(s.seq)
	if err != nil {
		return nil, err
	}
	s.seq = nextSeq
	if len(payload) > 0 && payload[0] == 0x01 {
		more, err := protocol.DecodeAuthMoreData(payload)
		if err != nil {
			return nil, err
		}
		return more.Data, nil
	}
	return payload, nil
}

// writePacket frames payload at the session's current sequence id and
// advances it, per spec §4.1/§4.2's sequence discipline.
func (s *Session) writePacket(payload []byte) error {
	nextSeq, err := s.pw.WritePacket(payload, s.seq)
	if err != nil {
		s.Poison()
		return jerrors.Trace(err)
	}
	s.seq = nextSeq
	return nil
}

// resetSeq resets the sequence counter to 0, done at the start of every
// new command per spec §4.2/§3 Invariants.
func (s *Session) resetSeq() { s.seq = 0 }

// Close sends COM_QUIT (best-effort) and tears down the transport.
func (s *Session) Close() error {
	s.resetSeq()
	_ = s.writePacket(protocol.EncodeComQuit())
	return s.conn.Close()
}

// Ping issues COM_PING, used by pool health checks, per spec §4.2.
func (s *Session) Ping(ctx context.Context) error {
	s.resetSeq()
	if err := s.writePacket(protocol.EncodeComPing()); err != nil {
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
	return nil
}
