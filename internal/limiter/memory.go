package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local limiter for single-node deployments
// (the SQLite backend). State is lost on restart.
type Memory struct {
	mu    sync.Mutex
	state *cache.Cache
	cfg   Config
	now   func() time.Time
}

type memEntry struct {
	fails        int
	firstFail    time.Time
	blockedUntil time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(cfg Config) *Memory {
	ttl := cfg.Window
	if cfg.BlockFor > ttl {
		ttl = cfg.BlockFor
	}
	return &Memory{state: cache.New(ttl, 2*ttl), cfg: cfg, now: time.Now}
}

func memKey(subject string, ipHash []byte) string {
	return subject + "|" + hex.EncodeToString(ipHash)
}

func (l *Memory) get(key string) memEntry {
	if v, ok := l.state.Get(key); ok {
		return v.(memEntry)
	}
	return memEntry{}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.get(memKey(subject, ipHash))
	if d := e.blockedUntil.Sub(l.now()); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success resets counters for (subject, ip).
func (l *Memory) Success(_ context.Context, subject string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Delete(memKey(subject, ipHash))
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (l *Memory) Failure(_ context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := memKey(subject, ipHash)
	now := l.now()
	e := l.get(key)
	if e.fails == 0 || now.Sub(e.firstFail) > l.cfg.Window {
		e = memEntry{firstFail: now}
	}
	e.fails++

	blocked := e.fails >= l.cfg.MaxFails
	if blocked {
		e.blockedUntil = now.Add(l.cfg.BlockFor)
	}
	l.state.SetDefault(key, e)
	if blocked {
		return true, l.cfg.BlockFor, nil
	}
	return false, 0, nil
}
