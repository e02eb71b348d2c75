package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCompressionSnappyRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc, err := WrapCompression(&timeoutConn{Conn: client}, CompressSnappy)
	require.NoError(t, err)
	sc, err := WrapCompression(&timeoutConn{Conn: server}, CompressSnappy)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, err := sc.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
	}()

	_, err = cc.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read")
	}
}

func TestWrapCompressionNoneReturnsSameConn(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()
	c := &timeoutConn{Conn: client}
	wrapped, err := WrapCompression(c, CompressNone)
	require.NoError(t, err)
	assert.Same(t, Conn(c), wrapped)
}
