package executor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-driver/protocol"
	"github.com/zhukovaskychina/xmysql-driver/session"
	"github.com/zhukovaskychina/xmysql-driver/xlog"
)

// serverGreeting builds a minimal, real Initial Handshake Packet payload
// offering only ClientProtocol41|ClientSecureConnection|ClientDeprecateEOF,
// so the handshake response carries no SSL/plugin-auth-name branches.
func serverGreeting() []byte {
	caps := protocol.ClientProtocol41 | protocol.ClientSecureConnection | protocol.ClientDeprecateEOF

	w := protocol.NewWriter(64)
	w.Byte(10)
	w.NullTerminatedString("5.7.30-test")
	w.Uint32(99) // connection id / thread id
	w.RawBytes([]byte("12345678"))
	w.Byte(0)
	w.Uint16(uint16(caps))
	w.Byte(0)                    // charset
	w.Uint16(protocol.StatusAutocommit)
	w.Uint16(uint16(caps >> 16)) // cap high
	w.Byte(21)                   // auth-plugin-data-len
	w.Zero(10)                   // reserved
	w.RawBytes([]byte("123456789012\x00"))
	return w.Bytes()
}

// dialConnectedSession drives a minimal handshake over a net.Pipe and
// returns a connected *session.Session plus the server's half of the pipe
// for the test to drive further command exchanges on.
func dialConnectedSession(t *testing.T) (*session.Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()

	type result struct {
		sess *session.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := session.ConnectOverConn(context.Background(), client, session.ConnectOptions{
			Username: "root",
			Password: "",
		}, xlog.NewStderr("test", "error"))
		done <- result{sess, err}
	}()

	pw := protocol.NewPacketWriter(server)
	_, err := pw.WritePacket(serverGreeting(), 0)
	require.NoError(t, err)

	pr := protocol.NewPacketReader(server)
	_, nextSeq, err := pr.ReadPacket(1) // handshake response
	require.NoError(t, err)

	okw := protocol.NewWriter(8)
	okw.Byte(0x00)
	okw.LengthEncodedInt(0)
	okw.LengthEncodedInt(0)
	okw.Uint16(protocol.StatusAutocommit)
	okw.Uint16(0)
	_, err = pw.WritePacket(okw.Bytes(), nextSeq)
	require.NoError(t, err)

	res := <-done
	require.NoError(t, res.err)
	return res.sess, server
}

func writeOK(t *testing.T, conn net.Conn, seq byte) {
	t.Helper()
	w := protocol.NewWriter(8)
	w.Byte(0x00)
	w.LengthEncodedInt(0)
	w.LengthEncodedInt(0)
	w.Uint16(protocol.StatusAutocommit)
	w.Uint16(0)
	pw := protocol.NewPacketWriter(conn)
	_, err := pw.WritePacket(w.Bytes(), seq)
	require.NoError(t, err)
}

func TestExecutorExecuteTextFastPath(t *testing.T) {
	sess, server := dialConnectedSession(t)
	defer server.Close()

	go func() {
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0) // COM_QUERY
		writeOK(t, server, 1)
	}()

	e := New(sess, nil, Options{}, nil)
	res, err := e.ExecuteText(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NotNil(t, res.OK)
	assert.Nil(t, res.Rows)
	assert.False(t, sess.Poisoned())
}

func TestExecutorCommandTimeoutNoCancellationPoisonsSession(t *testing.T) {
	sess, server := dialConnectedSession(t)
	defer server.Close()

	// The server goroutine reads the query but never replies, simulating a
	// stuck command.
	go func() {
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0)
	}()

	e := New(sess, nil, Options{
		CommandTimeout:      20 * time.Millisecond,
		CancellationTimeout: -1,
		GracePeriod:         10 * time.Millisecond,
	}, nil)

	_, err := e.ExecuteText(context.Background(), "SELECT SLEEP(100)")
	assert.Error(t, err)
	assert.True(t, sess.Poisoned())
}

func TestExecutorCommandTimeoutWithoutDialerPoisonsAfterGrace(t *testing.T) {
	sess, server := dialConnectedSession(t)
	defer server.Close()

	go func() {
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0)
	}()

	e := New(sess, nil, Options{
		CommandTimeout:      20 * time.Millisecond,
		CancellationTimeout: 50 * time.Millisecond,
		GracePeriod:         10 * time.Millisecond,
	}, nil)

	_, err := e.ExecuteText(context.Background(), "SELECT SLEEP(100)")
	assert.Error(t, err)
	assert.True(t, sess.Poisoned())
}
