package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/metrics"
)

var (
	// ErrUnknownResource is a configuration error: a caller asked for a
	// resource name that was never registered.
	ErrUnknownResource = errors.New("unknown pooled resource")

	// ErrInvalidTarget is returned when an HTTP target has no usable domain.
	ErrInvalidTarget = errors.New("invalid backend target")

	// ErrDuplicateResource is returned when a name is registered twice.
	ErrDuplicateResource = errors.New("pooled resource already registered")
)

// Config holds the pool's timing and transport settings.
type Config struct {
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	HTTPIdleTimeout    time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// ConfigFrom converts the application pool settings.
func ConfigFrom(cfg config.PoolConfig) Config {
	return Config{
		ProbeInterval:      cfg.ProbeInterval,
		ProbeTimeout:       cfg.ProbeTimeout,
		HTTPIdleTimeout:    cfg.HTTPIdleTimeout,
		ConnectTimeout:     cfg.ConnectTimeout,
		ReadTimeout:        cfg.ReadTimeout,
		BreakerMaxFailures: cfg.Breaker.MaxFailures,
		BreakerOpenTimeout: cfg.Breaker.OpenTimeout,
	}
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:      5 * time.Second,
		ProbeTimeout:       2 * time.Second,
		HTTPIdleTimeout:    120 * time.Second,
		ConnectTimeout:     3 * time.Second,
		ReadTimeout:        15 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// Manager owns the registry of pooled resources.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	named map[string]Handle

	// domains maps scheme://host to *HTTPHandle. Reads are lock-free;
	// creation of a new domain is serialised by domainMu.
	domains  sync.Map
	domainMu sync.Mutex

	// inflight marks handles whose previous probe has not returned yet.
	inflight sync.Map

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates an empty manager. m may be nil.
func NewManager(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "pool"),
		metrics: m,
		named:   make(map[string]Handle),
	}
}

// Register adds a static named resource.
func (m *Manager) Register(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.named[h.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, h.Name())
	}
	m.named[h.Name()] = h
	m.countCreated("named")
	return nil
}

// Get returns the handle registered under name. Domain handles are also
// reachable by their scheme://host. An unknown name is a programming error:
// it is logged loudly and no I/O is attempted.
func (m *Manager) Get(name string) (Handle, error) {
	m.mu.RLock()
	h, ok := m.named[name]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}
	if v, ok := m.domains.Load(name); ok {
		return v.(*HTTPHandle), nil
	}
	m.logger.Error("requested unknown pooled resource", "name", name)
	return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
}

// HTTP returns the handle for target's domain, creating it on first use.
// Two concurrent first uses of a domain always end up with the same handle.
func (m *Manager) HTTP(target string) (*HTTPHandle, error) {
	domain, err := DomainOf(target)
	if err != nil {
		return nil, err
	}
	if v, ok := m.domains.Load(domain); ok {
		return v.(*HTTPHandle), nil
	}

	m.domainMu.Lock()
	defer m.domainMu.Unlock()
	if v, ok := m.domains.Load(domain); ok {
		return v.(*HTTPHandle), nil
	}

	h := newHTTPHandle(domain, m.cfg, m.logger, m.countReinit)
	m.domains.Store(domain, h)
	m.countCreated("http")
	m.logger.Info("registered backend domain", "domain", domain)
	return h, nil
}

// Handles returns every registered handle, named ones first, sorted by name.
func (m *Manager) Handles() []Handle {
	m.mu.RLock()
	out := make([]Handle, 0, len(m.named))
	for _, h := range m.named {
		out = append(out, h)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	var domains []Handle
	m.domains.Range(func(_, v any) bool {
		domains = append(domains, v.(*HTTPHandle))
		return true
	})
	sort.Slice(domains, func(i, j int) bool { return domains[i].Name() < domains[j].Name() })
	return append(out, domains...)
}

// InitializeAll initialises every handle concurrently. A failing handle is
// logged and reported in the joined error but never blocks the others.
func (m *Manager) InitializeAll(ctx context.Context) error {
	handles := m.Handles()
	errs := make([]error, len(handles))

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h Handle) {
			defer wg.Done()
			if err := h.Initialize(ctx); err != nil {
				m.logger.Error("failed to initialize pooled resource",
					"resource", h.Name(),
					"error", err)
				errs[i] = err
			}
		}(i, h)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ProbeAll probes every handle concurrently, idle ones included: a healthy
// client is kept warm and never replaced for idleness, since callers may
// still hold it. Each probe gets ProbeTimeout; one that overruns is
// abandoned and skipped by later rounds until it returns.
func (m *Manager) ProbeAll(ctx context.Context) {
	handles := m.Handles()

	done := make(chan struct{}, len(handles))
	started := 0
	for _, h := range handles {
		flag, _ := m.inflight.LoadOrStore(h.Name(), new(atomic.Bool))
		busy := flag.(*atomic.Bool)
		if !busy.CompareAndSwap(false, true) {
			m.logger.Warn("skipping probe, previous probe still running", "resource", h.Name())
			m.countProbe(h.Name(), "skipped")
			continue
		}
		started++
		go func(h Handle, busy *atomic.Bool) {
			defer func() {
				busy.Store(false)
				done <- struct{}{}
			}()
			m.probeOne(ctx, h)
		}(h, busy)
	}

	deadline := time.NewTimer(m.cfg.ProbeTimeout + m.cfg.ProbeTimeout/2)
	defer deadline.Stop()
	for i := 0; i < started; i++ {
		select {
		case <-done:
		case <-deadline.C:
			m.logger.Warn("probe round timed out", "pending", started-i)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) probeOne(ctx context.Context, h Handle) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("probe panicked", "resource", h.Name(), "panic", fmt.Sprint(p))
			m.countProbe(h.Name(), "panic")
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	if h.Probe(pctx) {
		m.countProbe(h.Name(), "ok")
		return
	}
	m.countProbe(h.Name(), "failed")
}

// Start launches the periodic probe loop. It returns an error if the loop
// is already running.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("pool manager already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		m.logger.Info("pool probe loop started", "interval", m.cfg.ProbeInterval)
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("pool probe loop stopped")
				return
			case <-ticker.C:
				m.ProbeAll(ctx)
			}
		}
	}()
	return nil
}

// Stop halts the probe loop and waits for it to exit.
func (m *Manager) Stop() {
	if !m.started.Load() || m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.started.Store(false)
}

// CloseAll closes every handle. Individual failures are logged and joined
// but never stop the remaining closes.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, h := range m.Handles() {
		if err := h.Close(); err != nil {
			m.logger.Warn("error closing pooled resource", "resource", h.Name(), "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) countCreated(kind string) {
	if m.metrics != nil {
		m.metrics.PoolHandlesCreated.WithLabelValues(kind).Inc()
	}
}

func (m *Manager) countProbe(name, result string) {
	if m.metrics != nil {
		m.metrics.PoolProbes.WithLabelValues(name, result).Inc()
	}
}

func (m *Manager) countReinit(name string) {
	if m.metrics != nil {
		m.metrics.PoolReinits.WithLabelValues(name).Inc()
	}
}
