package lib

import (
	"context"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RedialConfig defines how Dial retries a failed handshake
type RedialConfig struct {
	MaxRetries        int           // Maximum number of handshake attempts after the first (-1 for infinite)
	InitialBackoff    time.Duration // Initial backoff duration (e.g., 100ms)
	MaxBackoff        time.Duration // Maximum backoff duration (e.g., 30s)
	BackoffMultiplier float64       // Backoff multiplier for exponential backoff (e.g., 1.5 or 2.0)
}

// DefaultRedialConfig returns a sensible default configuration
func DefaultRedialConfig() *RedialConfig {
	return &RedialConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Dial connects pc to raddr, repeating the handshake with exponential backoff
// until it succeeds, the attempts run out or ctx is done. A nil rc means a
// single attempt.
func Dial(ctx context.Context, pc net.PacketConn, raddr net.Addr, cfg *ConnectionConfig, rc *RedialConfig) (*Connection, error) {
	c, err := NewConnection(pc, cfg)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		rc = &RedialConfig{MaxRetries: 0}
	}

	attempt := 0
	for {
		lastErr := c.Connect(raddr)
		if lastErr == nil {
			return c, nil
		}
		if !isRedialable(lastErr) {
			return nil, lastErr
		}
		if rc.MaxRetries != -1 && attempt >= rc.MaxRetries {
			return nil, errors.Wrapf(lastErr, "handshake with %v failed after %d attempts", raddr, attempt+1)
		}

		backoff := rc.backoff(attempt)
		c.log.Info("handshake failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(lastErr))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		attempt++
	}
}

func isRedialable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrProtocolViolation)
}

// backoff calculates the backoff duration using exponential growth with jitter
func (rc *RedialConfig) backoff(attempt int) time.Duration {
	exponentialBackoff := time.Duration(float64(rc.InitialBackoff) *
		math.Pow(rc.BackoffMultiplier, float64(attempt)))

	if rc.MaxBackoff > 0 && exponentialBackoff > rc.MaxBackoff {
		exponentialBackoff = rc.MaxBackoff
	}

	// +/-10% jitter
	jitter := time.Duration(float64(exponentialBackoff) * 0.1 * (2*rand.Float64() - 1.0))
	return exponentialBackoff + jitter
}
