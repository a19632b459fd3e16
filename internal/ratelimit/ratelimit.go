// Package ratelimit implements per-client sliding-window submission limits.
package ratelimit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Limiter decides whether a client may submit now. A rejected attempt is
// not recorded against the client's window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config holds the window parameters shared by all backends.
type Config struct {
	// MaxRequests is the number of accepted requests allowed per Window.
	MaxRequests int
	Window      time.Duration
	// MaxKeys caps the number of tracked clients in memory. Zero disables
	// the cap.
	MaxKeys int
	// SweepInterval is how often idle clients are evicted from memory.
	SweepInterval time.Duration
}

// DefaultConfig allows 5 submissions per client per hour.
func DefaultConfig() Config {
	return Config{
		MaxRequests:   5,
		Window:        time.Hour,
		MaxKeys:       100_000,
		SweepInterval: 5 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.MaxRequests < 1 {
		return eris.Errorf("ratelimit: max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return eris.Errorf("ratelimit: window must be positive, got %s", c.Window)
	}
	return nil
}
