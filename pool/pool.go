// Package pool manages a set of reusable connections keyed by Key, per
// spec §4.5. Grounded on the channel-of-placeholders pattern in the
// resource_pool.go reference, generalized to add the min/max sizing,
// lifetime/idle reaping, and reset-on-return the spec calls for, and on
// the teacher's session_manager.go ticker-based cleanupRoutine for the
// reaper's shape.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
	"github.com/zhukovaskychina/xmysql-driver/errkind"
	"github.com/zhukovaskychina/xmysql-driver/xlog"
)

// Factory dials a new Conn at addr for the pool to manage. addr is one of
// Key's candidate hosts, chosen by the Pool's Balancer; failure is
// reported as an error, letting Acquire propagate a TransportError/
// AuthError from the dial+handshake it performs.
type Factory func(ctx context.Context, addr string) (Conn, error)

// Options configures a Pool, mirroring the DSN pooling keys from spec §6.
type Options struct {
	MinSize        int
	MaxSize        int
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	ResetOnRelease bool
	ReapInterval   time.Duration
	LoadBalance    dsn.LoadBalanceMode
}

// quarantineBaseDelay and quarantineMaxDelay bound the exponential backoff
// applied to a host after consecutive dial/handshake failures, per spec
// §4.5's "failed hosts are quarantined with exponential backoff".
const (
	quarantineBaseDelay = time.Second
	quarantineMaxDelay  = 2 * time.Minute
)

// hostState tracks one candidate endpoint's health for load balancing and
// quarantine, per spec §4.5.
type hostState struct {
	addr string

	inUse int64 // atomic; incremented on Acquire, decremented on release

	mu               sync.Mutex
	failCount        int
	quarantinedUntil time.Time
}

func (h *hostState) quarantined(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failCount > 0 && now.Before(h.quarantinedUntil)
}

func (h *hostState) recordSuccess() {
	h.mu.Lock()
	h.failCount = 0
	h.quarantinedUntil = time.Time{}
	h.mu.Unlock()
}

func (h *hostState) recordFailure(now time.Time) {
	h.mu.Lock()
	h.failCount++
	h.quarantinedUntil = now.Add(quarantineBackoff(h.failCount))
	h.mu.Unlock()
}

// quarantineBackoff returns the exponential backoff for the nth
// consecutive failure (n >= 1), capped at quarantineMaxDelay.
func quarantineBackoff(failCount int) time.Duration {
	if failCount < 1 {
		failCount = 1
	}
	if failCount > 10 { // guard against overflow before the cap kicks in
		failCount = 10
	}
	d := quarantineBaseDelay << uint(failCount-1)
	if d > quarantineMaxDelay {
		d = quarantineMaxDelay
	}
	return d
}

// Pool hands out Conns from a bounded, reusable set. Modeled as a channel
// of slots (some holding a live Entry, some empty placeholders waiting to
// be filled by Factory on demand), the same shape the reference
// resource pool uses, so Acquire never blocks on a lock held by another
// goroutine's dial — only on channel receive.
type Pool struct {
	key      Key
	factory  Factory
	opts     Options
	log      *xlog.Logger
	balancer Balancer
	hosts    []*hostState

	slots chan *slot

	mu     sync.Mutex
	closed bool
	size   int // number of slots currently backed by a live Entry

	reapStop chan struct{}
	reapDone chan struct{}
}

type slot struct {
	entry *Entry // nil means "empty, needs Factory"
}

// New creates a Pool for key, pre-allocating MaxSize empty slots and
// spawning MinSize connections eagerly.
func New(key Key, factory Factory, opts Options, log *xlog.Logger) (*Pool, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1
	}
	if opts.MinSize > opts.MaxSize {
		opts.MinSize = opts.MaxSize
	}
	if log == nil {
		log = xlog.New("pool", "info", nopWriter{})
	}

	hostAddrs := key.hosts()
	hosts := make([]*hostState, len(hostAddrs))
	for i, addr := range hostAddrs {
		hosts[i] = &hostState{addr: addr}
	}

	p := &Pool{
		key:      key,
		factory:  factory,
		opts:     opts,
		log:      log,
		balancer: balancerFor(opts.LoadBalance),
		hosts:    hosts,
		slots:    make(chan *slot, opts.MaxSize),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}

	for i := 0; i < opts.MaxSize; i++ {
		p.slots <- &slot{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < opts.MinSize; i++ {
		s := <-p.slots
		entry, err := p.fill(ctx, s)
		if err != nil {
			p.slots <- s
			continue
		}
		p.slots <- entry
	}

	if opts.ReapInterval > 0 {
		go p.reapLoop()
	}

	return p, nil
}

// pickHost selects the next candidate host via the Pool's Balancer,
// preferring hosts that are not currently quarantined. If every host is
// quarantined, it falls back to balancing across all of them anyway
// rather than failing Acquire outright — a still-quarantined host is our
// best remaining option, not a reason to refuse service.
func (p *Pool) pickHost() *hostState {
	now := time.Now()
	var healthy []*hostState
	for _, h := range p.hosts {
		if !h.quarantined(now) {
			healthy = append(healthy, h)
		}
	}
	pool := healthy
	if len(pool) == 0 {
		pool = p.hosts
	}

	candidates := make([]Candidate, len(pool))
	for i, h := range pool {
		h := h
		candidates[i] = Candidate{
			Addr:        h.addr,
			InUse:       func() int64 { return atomic.LoadInt64(&h.inUse) },
			LastFailure: func() bool { return h.quarantined(time.Now()) },
		}
	}
	idx := p.balancer.Next(candidates)
	if idx < 0 || idx >= len(pool) {
		return pool[0]
	}
	return pool[idx]
}

func (p *Pool) fill(ctx context.Context, s *slot) (*slot, error) {
	h := p.pickHost()
	conn, err := p.factory(ctx, h.addr)
	if err != nil {
		h.recordFailure(time.Now())
		p.log.Entry().WithError(errkind.Traced(err)).
			WithField("addr", h.addr).Warn("dial failed, quarantining host")
		return nil, err
	}
	h.recordSuccess()
	s.entry = &Entry{Conn: conn, CreatedAt: time.Now(), ReleasedAt: time.Now(), host: h}
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	return s, nil
}

// probeQuarantinedHosts attempts a fresh dial against every host whose
// quarantine window has elapsed, closing the probe connection immediately
// and clearing the quarantine on success, or re-quarantining with an
// extended backoff on failure, per spec §4.5's reaper-driven probing.
func (p *Pool) probeQuarantinedHosts() {
	now := time.Now()
	for _, h := range p.hosts {
		h.mu.Lock()
		due := h.failCount > 0 && !now.Before(h.quarantinedUntil)
		h.mu.Unlock()
		if !due {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := p.factory(ctx, h.addr)
		cancel()
		if err != nil {
			h.recordFailure(now)
			continue
		}
		_ = conn.Close()
		h.recordSuccess()
	}
}

// Acquire returns a ready-to-use Conn, creating one via Factory if the
// slot handed to it was empty or held an expired Entry, per spec §4.5.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errkind.NewUsageError(errkind.InvalidState, "pool is closed")
	}
	p.mu.Unlock()

	var s *slot
	select {
	case s = <-p.slots:
	case <-ctx.Done():
		return nil, errkind.NewCancelled(ctx.Err())
	}

	if s.entry != nil && (s.entry.Expired(p.opts.MaxLifetime) || s.entry.Idle(p.opts.MaxIdleTime)) {
		_ = s.entry.Conn.Close()
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		s.entry = nil
	}

	if s.entry == nil {
		filled, err := p.fill(ctx, s)
		if err != nil {
			p.slots <- &slot{} // return an empty slot, not the failed one
			return nil, err
		}
		s = filled
	}

	entry := s.entry
	if entry.host != nil {
		atomic.AddInt64(&entry.host.inUse, 1)
	}
	// The slot itself is not returned to the channel until Release; its
	// absence from p.slots is what marks entry as "in use".
	return &leasedConn{Conn: entry.Conn, entry: entry, slot: s, pool: p}, nil
}

// release puts s back into circulation, resetting the underlying Conn
// first when ResetOnRelease is set, per spec §4.5's "Connection Reset".
func (p *Pool) release(s *slot, poison bool) {
	if s.entry.host != nil {
		atomic.AddInt64(&s.entry.host.inUse, -1)
	}

	if poison {
		_ = s.entry.Conn.Close()
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		s.entry = nil
		p.slots <- s
		return
	}

	if p.opts.ResetOnRelease {
		if err := s.entry.Conn.Reset(); err != nil {
			p.log.Entry().WithError(errkind.Traced(err)).Warn("reset on release failed, discarding connection")
			_ = s.entry.Conn.Close()
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			s.entry = nil
			p.slots <- s
			return
		}
	}
	s.entry.ReleasedAt = time.Now()
	p.slots <- s
}

// Close drains and closes every live connection, per spec §4.5.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.opts.ReapInterval > 0 {
		close(p.reapStop)
		<-p.reapDone
	}

	for i := 0; i < p.opts.MaxSize; i++ {
		s := <-p.slots
		if s.entry != nil {
			_ = s.entry.Conn.Close()
		}
	}
	return nil
}

// Size reports the number of slots currently backed by a live connection.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Stats is a point-in-time snapshot of a Pool's utilization, the data
// source for cmd/xmysql-top's dashboard.
type Stats struct {
	Live    int // slots currently backed by a connection (idle or leased)
	InUse   int // slots currently on loan to a caller
	MaxSize int
	MinSize int
}

// Stats reports the pool's current sizing, per spec §4.5's min/max pool
// size and in-flight lease accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	live := p.size
	p.mu.Unlock()
	idle := len(p.slots)
	return Stats{
		Live:    live,
		InUse:   p.opts.MaxSize - idle,
		MaxSize: p.opts.MaxSize,
		MinSize: p.opts.MinSize,
	}
}

func (p *Pool) reapLoop() {
	defer close(p.reapDone)
	ticker := time.NewTicker(p.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.reapStop:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

// reapOnce sweeps every currently-idle slot, closing and dropping entries
// that have exceeded MaxLifetime or MaxIdleTime, topping the pool back up
// to MinSize afterward, and probing any quarantined host whose backoff has
// elapsed. Slots currently on loan (Acquire'd) are untouched until they're
// Released, the same deferred-cleanup behavior as the teacher's
// CleanupExpiredSessions sweeping only sessions it still holds a
// reference to.
func (p *Pool) reapOnce() {
	p.probeQuarantinedHosts()

	n := len(p.slots)
	for i := 0; i < n; i++ {
		var s *slot
		select {
		case s = <-p.slots:
		default:
			return
		}
		if s.entry != nil && (s.entry.Expired(p.opts.MaxLifetime) || s.entry.Idle(p.opts.MaxIdleTime)) {
			_ = s.entry.Conn.Close()
			p.mu.Lock()
			p.size--
			p.mu.Unlock()
			s.entry = nil
		}
		p.slots <- s
	}

	p.mu.Lock()
	deficit := p.opts.MinSize - p.size
	p.mu.Unlock()
	if deficit <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := 0; i < deficit; i++ {
		select {
		case s := <-p.slots:
			if s.entry == nil {
				if filled, err := p.fill(ctx, s); err == nil {
					p.slots <- filled
					continue
				}
			}
			p.slots <- s
		default:
			return
		}
	}
}

// leasedConn is the Conn handed to callers by Acquire; its Close releases
// the slot back to the pool instead of tearing down the connection,
// unless poisoned (protocol/transport/auth failure mid-use marks a
// connection unfit for reuse, per spec §7).
type leasedConn struct {
	Conn
	entry    *Entry
	slot     *slot
	pool     *Pool
	poisoned bool
}

// Poison marks this lease's connection as unfit for reuse; the next
// Close discards it instead of returning it to the pool.
func (l *leasedConn) Poison() { l.poisoned = true }

func (l *leasedConn) Close() error {
	l.pool.release(l.slot, l.poisoned)
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(b []byte) (int, error) { return len(b), nil }
