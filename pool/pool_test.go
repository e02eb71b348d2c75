package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
)

type fakeConn struct {
	closed  bool
	resets  int
	pings   int
}

func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) Reset() error { c.resets++; return nil }
func (c *fakeConn) Ping() error  { c.pings++; return nil }

func TestPoolAcquireReleaseReusesConnection(t *testing.T) {
	var created int
	factory := func(ctx context.Context, addr string) (Conn, error) {
		created++
		return &fakeConn{}, nil
	}

	p, err := New(Key{Host: "h"}, factory, Options{MinSize: 0, MaxSize: 2}, nil)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	require.NoError(t, conn.Close())

	conn2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created, "second acquire should reuse the released connection")
	require.NoError(t, conn2.Close())
}

func TestPoolAcquirePoisonedConnectionIsDiscarded(t *testing.T) {
	var created int
	var fakes []*fakeConn
	factory := func(ctx context.Context, addr string) (Conn, error) {
		created++
		fc := &fakeConn{}
		fakes = append(fakes, fc)
		return fc, nil
	}

	p, err := New(Key{Host: "h"}, factory, Options{MaxSize: 1}, nil)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.(*leasedConn).Poison()
	require.NoError(t, conn.Close())
	assert.True(t, fakes[0].closed)

	conn2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created, "poisoned connection must not be reused")
	require.NoError(t, conn2.Close())
}

func TestPoolResetOnRelease(t *testing.T) {
	fc := &fakeConn{}
	factory := func(ctx context.Context, addr string) (Conn, error) { return fc, nil }

	p, err := New(Key{Host: "h"}, factory, Options{MaxSize: 1, ResetOnRelease: true}, nil)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, fc.resets)
}

func TestPoolAcquireBlocksUntilContextCancelled(t *testing.T) {
	factory := func(ctx context.Context, addr string) (Conn, error) { return &fakeConn{}, nil }
	p, err := New(Key{Host: "h"}, factory, Options{MaxSize: 1}, nil)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close() // hold the only slot until the test ends

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.Error(t, err)
}

func TestKeyHashStableForEqualKeys(t *testing.T) {
	k1 := Key{Host: "h", Port: 3306, User: "root", Database: "app"}
	k2 := Key{Host: "h", Port: 3306, User: "root", Database: "app"}
	assert.Equal(t, k1.Hash(), k2.Hash())
}

func TestBalancers(t *testing.T) {
	candidates := []Candidate{
		{Addr: "a", InUse: func() int64 { return 3 }},
		{Addr: "b", InUse: func() int64 { return 1 }},
	}
	assert.Equal(t, 1, LeastConnectionsBalancer{}.Next(candidates))

	var rr RoundRobinBalancer
	first := rr.Next(candidates)
	second := rr.Next(candidates)
	assert.NotEqual(t, first, second)
}

func TestPoolQuarantinesFailingHostAndFailsOverToTheNext(t *testing.T) {
	var dialed []string
	factory := func(ctx context.Context, addr string) (Conn, error) {
		dialed = append(dialed, addr)
		if addr == "bad" {
			return nil, errors.New("dial refused")
		}
		return &fakeConn{}, nil
	}

	key := Key{Hosts: []string{"bad", "good"}, Port: 3306, User: "root"}
	p, err := New(key, factory, Options{MaxSize: 1, LoadBalance: dsn.LoadBalanceFailOver}, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire(context.Background())
	assert.Error(t, err, "the first attempt dials the unhealthy host and fails")

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err, "the second attempt must route around the quarantined host")
	require.NoError(t, conn.Close())

	assert.Equal(t, []string{"bad", "good"}, dialed)
}
