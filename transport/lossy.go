package transport

import (
	"math/rand"
	"net"
	"sync"

	"go.uber.org/zap"
)

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// DropFunc decides whether a datagram is lost.
type DropFunc func(dir Direction, b []byte) bool

// RandomDrop loses datagrams in both directions with probability rate.
func RandomDrop(rate float64, seed int64) DropFunc {
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func(dir Direction, b []byte) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < rate
	}
}

// DropNth loses the nth datagram (1-based) travelling in dir for which match
// returns true. A nil match counts every datagram.
func DropNth(dir Direction, n int, match func(b []byte) bool) DropFunc {
	var mu sync.Mutex
	seen := 0
	return func(d Direction, b []byte) bool {
		if d != dir || (match != nil && !match(b)) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		return seen == n
	}
}

// LossyConn wraps a PacketConn and silently discards the datagrams its DropFunc selects.
type LossyConn struct {
	net.PacketConn
	drop    DropFunc
	log     *zap.Logger
	mu      sync.Mutex
	dropped [2]int
}

func NewLossyConn(pc net.PacketConn, drop DropFunc, logger *zap.Logger) *LossyConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LossyConn{PacketConn: pc, drop: drop, log: logger}
}

func (l *LossyConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if l.shouldDrop(Outbound, b) {
		return len(b), nil
	}
	return l.PacketConn.WriteTo(b, addr)
}

func (l *LossyConn) ReadFrom(b []byte) (int, net.Addr, error) {
	for {
		n, addr, err := l.PacketConn.ReadFrom(b)
		if err != nil {
			return n, addr, err
		}
		if l.shouldDrop(Inbound, b[:n]) {
			continue
		}
		return n, addr, nil
	}
}

// Dropped returns how many datagrams were discarded in dir.
func (l *LossyConn) Dropped(dir Direction) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped[dir]
}

func (l *LossyConn) shouldDrop(dir Direction, b []byte) bool {
	if l.drop == nil || !l.drop(dir, b) {
		return false
	}
	l.mu.Lock()
	l.dropped[dir]++
	l.mu.Unlock()
	l.log.Debug("dropped datagram", zap.Stringer("direction", dir), zap.Int("size", len(b)))
	return true
}
