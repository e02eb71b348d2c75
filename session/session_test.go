package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-driver/protocol"
)

func newSessionOverPipe(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	s := &Session{
		conn:           client,
		pr:             protocol.NewPacketReader(client),
		pw:             protocol.NewPacketWriter(client),
		preparedByText: make(map[string]*PreparedStatement),
		capabilities:   protocol.ClientProtocol41 | protocol.ClientDeprecateEOF,
	}
	return s, server
}

func writeServerPacket(t *testing.T, conn net.Conn, payload []byte, seq byte) {
	t.Helper()
	pw := protocol.NewPacketWriter(conn)
	_, err := pw.WritePacket(payload, seq)
	require.NoError(t, err)
}

func TestSessionPingSuccess(t *testing.T) {
	s, server := newSessionOverPipe(t)
	defer server.Close()

	go func() {
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0) // COM_PING request

		w := protocol.NewWriter(8)
		w.Byte(0x00)
		w.LengthEncodedInt(0)
		w.LengthEncodedInt(0)
		w.Uint16(protocol.StatusAutocommit)
		w.Uint16(0)
		writeServerPacket(t, server, w.Bytes(), 1)
	}()

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}

func TestSessionQueryTextOKResult(t *testing.T) {
	s, server := newSessionOverPipe(t)
	defer server.Close()

	go func() {
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0) // COM_QUERY request

		w := protocol.NewWriter(16)
		w.Byte(0x00)
		w.LengthEncodedInt(1)
		w.LengthEncodedInt(42)
		w.Uint16(protocol.StatusAutocommit)
		w.Uint16(0)
		writeServerPacket(t, server, w.Bytes(), 1)
	}()

	ok, rs, err := s.QueryText(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.Nil(t, rs)
	assert.Equal(t, uint64(1), ok.AffectedRows)
	assert.Equal(t, uint64(42), ok.LastInsertID)
}

func TestSessionQueryTextResultSet(t *testing.T) {
	s, server := newSessionOverPipe(t)
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pr := protocol.NewPacketReader(server)
		_, _, _ = pr.ReadPacket(0) // COM_QUERY

		// column count
		cc := protocol.NewWriter(4)
		cc.LengthEncodedInt(1)
		writeServerPacket(t, server, cc.Bytes(), 1)

		// one column definition
		col := protocol.NewWriter(64)
		col.LengthEncodedString("def")
		col.LengthEncodedString("")
		col.LengthEncodedString("")
		col.LengthEncodedString("")
		col.LengthEncodedString("n")
		col.LengthEncodedString("n")
		col.LengthEncodedInt(0x0c)
		col.Uint16(33)
		col.Uint32(11)
		col.Byte(byte(protocol.TypeVarchar))
		col.Uint16(0)
		col.Byte(0)
		writeServerPacket(t, server, col.Bytes(), 2)

		// one row: single string value
		row := protocol.NewWriter(16)
		row.LengthEncodedString("hello")
		writeServerPacket(t, server, row.Bytes(), 3)

		// terminal OK (ClientDeprecateEOF: 0xfe header)
		okw := protocol.NewWriter(8)
		okw.Byte(0xfe)
		okw.LengthEncodedInt(0)
		okw.LengthEncodedInt(0)
		okw.Uint16(protocol.StatusAutocommit)
		okw.Uint16(0)
		writeServerPacket(t, server, okw.Bytes(), 4)
	}()

	ok, rs, err := s.QueryText(context.Background(), "SELECT n FROM t")
	require.NoError(t, err)
	require.Nil(t, ok)
	require.NotNil(t, rs)
	assert.Len(t, rs.Columns, 1)

	values, err := rs.Next()
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "hello", values[0].S)

	_, err = rs.Next()
	assert.ErrorIs(t, err, io.EOF)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server goroutine did not finish")
	}
}
