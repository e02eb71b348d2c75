package pool

import (
	"math/rand"
	"sync/atomic"

	"github.com/zhukovaskychina/xmysql-driver/dsn"
)

// Candidate is one pool member a Balancer can pick among: a single
// logical pool may span multiple backend addresses (e.g. a DSN listing
// several hosts for read replicas), per spec §4.5's "Load Balance" key.
type Candidate struct {
	Addr        string
	InUse       func() int64
	LastFailure func() (failed bool)
}

// Balancer selects which Candidate should serve the next acquisition.
type Balancer interface {
	Next(candidates []Candidate) int
}

// RoundRobinBalancer cycles through candidates in order.
type RoundRobinBalancer struct {
	counter uint64
}

func (b *RoundRobinBalancer) Next(candidates []Candidate) int {
	if len(candidates) == 0 {
		return -1
	}
	n := atomic.AddUint64(&b.counter, 1)
	return int(n % uint64(len(candidates)))
}

// FailOverBalancer picks the first candidate, in order, whose LastFailure
// does not report true (a nil LastFailure counts as healthy), falling back
// to candidates[0] when every candidate reports a failure.
type FailOverBalancer struct{}

func (FailOverBalancer) Next(candidates []Candidate) int {
	for i, c := range candidates {
		if c.LastFailure == nil || !c.LastFailure() {
			return i
		}
	}
	if len(candidates) > 0 {
		return 0
	}
	return -1
}

// RandomBalancer picks a candidate uniformly at random.
type RandomBalancer struct{}

func (RandomBalancer) Next(candidates []Candidate) int {
	if len(candidates) == 0 {
		return -1
	}
	return rand.Intn(len(candidates))
}

// LeastConnectionsBalancer picks the candidate with the fewest
// in-use connections.
type LeastConnectionsBalancer struct{}

func (LeastConnectionsBalancer) Next(candidates []Candidate) int {
	best := -1
	var bestCount int64
	for i, c := range candidates {
		count := int64(0)
		if c.InUse != nil {
			count = c.InUse()
		}
		if best == -1 || count < bestCount {
			best = i
			bestCount = count
		}
	}
	return best
}

// balancerFor constructs the Balancer named by a DSN's Load Balance key,
// per spec §4.5's RoundRobin (default)/FailOver/Random/LeastConnections
// choices.
func balancerFor(mode dsn.LoadBalanceMode) Balancer {
	switch mode {
	case dsn.LoadBalanceFailOver:
		return FailOverBalancer{}
	case dsn.LoadBalanceRandom:
		return RandomBalancer{}
	case dsn.LoadBalanceLeastConnections:
		return LeastConnectionsBalancer{}
	default:
		return &RoundRobinBalancer{}
	}
}
