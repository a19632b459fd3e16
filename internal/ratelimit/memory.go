package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Option configures a Memory limiter.
type Option func(*Memory)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

type window struct {
	hits []time.Time
}

// Memory is an in-process sliding-window limiter. Windows are held under a
// single mutex in least-recently-used order; idle clients are dropped by
// Sweep and the oldest client is evicted when MaxKeys is reached.
type Memory struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows *simplelru.LRU[string, *window]
}

// NewMemory creates an in-memory limiter.
func NewMemory(cfg Config, opts ...Option) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	size := cfg.MaxKeys
	if size <= 0 {
		size = math.MaxInt
	}
	windows, err := simplelru.NewLRU[string, *window](size, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ratelimit: create client table")
	}
	m := &Memory{
		cfg:     cfg,
		now:     time.Now,
		windows: windows,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Allow prunes the client's expired hits, rejects when the window is full,
// and otherwise records the attempt. Rejected clients still count as
// recently seen.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows.Get(key)
	if !ok {
		m.makeRoomLocked(now)
		w = &window{}
		m.windows.Add(key, w)
	}
	w.hits = m.prune(w.hits, now)

	if len(w.hits) >= m.cfg.MaxRequests {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

// Sweep removes clients with no hits inside the window and returns how many
// were evicted.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for _, key := range m.windows.Keys() {
		w, ok := m.windows.Peek(key)
		if !ok {
			continue
		}
		w.hits = m.prune(w.hits, now)
		if len(w.hits) == 0 {
			m.windows.Remove(key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps every SweepInterval until ctx is done.
func (m *Memory) Run(ctx context.Context) error {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = m.cfg.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				zap.L().Debug("ratelimit: swept idle clients",
					zap.Int("evicted", n),
					zap.Int("tracked", m.Len()),
				)
			}
		}
	}
}

// Len returns the number of tracked clients.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windows.Len()
}

func (m *Memory) prune(hits []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= m.cfg.Window {
		i++
	}
	return hits[i:]
}

// makeRoomLocked evicts the least recently seen client when the table is
// full. The evicted client's window restarts if it returns.
func (m *Memory) makeRoomLocked(now time.Time) {
	if m.cfg.MaxKeys <= 0 || m.windows.Len() < m.cfg.MaxKeys {
		return
	}
	key, w, ok := m.windows.RemoveOldest()
	if !ok {
		return
	}
	if active := len(m.prune(w.hits, now)); active > 0 {
		zap.L().Warn("ratelimit: client cap reached, evicted active client",
			zap.Int("max_keys", m.cfg.MaxKeys),
			zap.String("client", key),
			zap.Int("hits_in_window", active),
		)
	}
}
