// Package persistence provides pooled, retrying access to the Supabase
// backend. The pool bounds the number of live client handles; the
// executor layers retry, backoff and circuit breaking on top.
package persistence

import (
	"errors"
	"sync"
	"time"

	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"resumeforge-backend/internal/config"
)

// ErrNoClients is returned by Acquire when the pool was constructed
// without backend credentials and holds no handles.
var ErrNoClients = errors.New("connection pool has no clients")

// ClientHandle is a reusable backend client tracked by the pool. The
// handle itself is stable for the pool's lifetime; its underlying
// client is replaced during maintenance once the request count crosses
// the refresh threshold while idle.
type ClientHandle struct {
	client   *supabase.Client
	inUse    bool
	lastUsed time.Time
	requests int64
}

// Client returns the underlying Supabase client.
func (h *ClientHandle) Client() *supabase.Client {
	return h.client
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	Size          int   `json:"size"`
	InUse         int   `json:"in_use"`
	TotalRequests int64 `json:"total_requests"`
	Refreshes     int64 `json:"refreshes"`
	Degraded      bool  `json:"degraded"`
}

// ClientPool holds a fixed-size set of pre-built Supabase client
// handles. It is an accelerator, not a hard resource limiter: when
// every handle is busy, Acquire hands out the least-loaded one instead
// of blocking or queueing.
type ClientPool struct {
	mu       sync.Mutex
	handles  []*ClientHandle
	cfg      *config.Config
	logger   *zap.Logger
	stopOnce sync.Once
	stop     chan struct{}

	totalRequests int64
	refreshes     int64
}

// NewClientPool builds cfg.Pool.Size client handles. Missing Supabase
// credentials degrade the pool to an empty, non-functional state with a
// logged warning rather than failing startup; callers see ErrNoClients
// from every Acquire.
func NewClientPool(cfg *config.Config, logger *zap.Logger) *ClientPool {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &ClientPool{
		cfg:    cfg,
		logger: logger.Named("client_pool"),
		stop:   make(chan struct{}),
	}

	if !cfg.HasBackend() {
		p.logger.Warn("Supabase credentials missing, connection pool is degraded",
			zap.Bool("url_set", cfg.SupabaseURL != ""),
			zap.Bool("key_set", cfg.SupabaseKey != ""),
		)
		return p
	}

	for i := 0; i < cfg.Pool.Size; i++ {
		client, err := newClient(cfg)
		if err != nil {
			p.logger.Warn("Failed to build Supabase client",
				zap.Int("slot", i),
				zap.Error(err),
			)
			continue
		}
		p.handles = append(p.handles, &ClientHandle{client: client})
	}

	go p.maintenanceLoop(cfg.Pool.MaintenanceInterval)

	return p
}

func newClient(cfg *config.Config) (*supabase.Client, error) {
	return supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
}

// Acquire returns a handle for one backend operation. The first free
// handle wins; when all are busy the least-used handle is shared
// instead of blocking the caller.
func (p *ClientPool) Acquire() (*ClientHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.handles) == 0 {
		return nil, ErrNoClients
	}

	var chosen *ClientHandle
	for _, h := range p.handles {
		if !h.inUse {
			chosen = h
			break
		}
	}
	if chosen == nil {
		// Soft over-subscription: share the least-loaded handle.
		chosen = p.handles[0]
		for _, h := range p.handles[1:] {
			if h.requests < chosen.requests {
				chosen = h
			}
		}
	}

	chosen.inUse = true
	chosen.lastUsed = time.Now()
	chosen.requests++
	p.totalRequests++

	return chosen, nil
}

// Release marks a handle free again. Unknown handles are ignored.
func (p *ClientPool) Release(h *ClientHandle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, known := range p.handles {
		if known == h {
			h.inUse = false
			return
		}
	}
}

// Stats returns pool counters for the observability surface.
func (p *ClientPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := 0
	for _, h := range p.handles {
		if h.inUse {
			inUse++
		}
	}

	return PoolStats{
		Size:          len(p.handles),
		InUse:         inUse,
		TotalRequests: p.totalRequests,
		Refreshes:     p.refreshes,
		Degraded:      len(p.handles) == 0,
	}
}

// Close stops the maintenance loop. Handles are not torn down; they
// hold no system resources beyond an HTTP client.
func (p *ClientPool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

func (p *ClientPool) maintenanceLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.refreshOverusedClients()
		}
	}
}

// refreshOverusedClients rebuilds the underlying client of every idle
// handle whose request count crossed the threshold. This rotates
// long-lived connections and credentials without resizing the pool.
func (p *ClientPool) refreshOverusedClients() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, h := range p.handles {
		if h.inUse || h.requests < p.cfg.Pool.RefreshThreshold {
			continue
		}
		client, err := newClient(p.cfg)
		if err != nil {
			p.logger.Warn("Failed to refresh Supabase client",
				zap.Int("slot", i),
				zap.Error(err),
			)
			continue
		}
		h.client = client
		h.requests = 0
		p.refreshes++
		p.logger.Debug("Refreshed pooled client", zap.Int("slot", i))
	}
}
