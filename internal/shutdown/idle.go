// Package shutdown provides graceful shutdown utilities: ordered resource
// teardown and an optional idle exit.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCheckInterval is how often an IdleMonitor looks for inactivity.
const DefaultCheckInterval = 10 * time.Second

// IdleMonitor signals shutdown once no vendor request has run for the
// configured timeout and no browser page is on loan.
type IdleMonitor struct {
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	ignore   func(*http.Request) bool
	busy     func() bool
	now      func() time.Time

	lastRequest atomic.Int64 // unix nanoseconds
	active      atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// IdleMonitorConfig configures the idle monitor.
type IdleMonitorConfig struct {
	// Timeout is the inactivity that triggers shutdown; <= 0 disables the
	// monitor.
	Timeout time.Duration

	// CheckInterval defaults to DefaultCheckInterval.
	CheckInterval time.Duration

	Logger *slog.Logger

	// Ignore marks requests that do not count as activity. Defaults to
	// IsProbe.
	Ignore func(*http.Request) bool

	// Busy reports outstanding work outside HTTP requests, such as browser
	// pages still on loan.
	Busy func() bool
}

// NewIdleMonitor creates a monitor. Call Start to begin watching.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	m := &IdleMonitor{
		timeout:  cfg.Timeout,
		interval: cfg.CheckInterval,
		logger:   cfg.Logger,
		ignore:   cfg.Ignore,
		busy:     cfg.Busy,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if m.interval <= 0 {
		m.interval = DefaultCheckInterval
	}
	if m.ignore == nil {
		m.ignore = IsProbe
	}
	if m.busy == nil {
		m.busy = func() bool { return false }
	}
	m.touch()
	return m
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.timeout > 0
}

// Start watches for inactivity in the background. It does nothing when the
// monitor is disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		m.logger.Info("idle shutdown disabled (set IDLE_TIMEOUT to enable)")
		return
	}
	m.logger.Info("idle shutdown enabled", "timeout", m.timeout)

	m.wg.Add(1)
	go m.run()
}

// Stop ends the watch. It is safe to call more than once.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.doneCh
}

func (m *IdleMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.idle() {
				m.logger.Info("idle timeout reached, signaling shutdown",
					"idle_time", m.IdleTime().Round(time.Second),
					"timeout", m.timeout,
				)
				close(m.doneCh)
				return
			}
		}
	}
}

// idle reports whether the shutdown condition holds right now.
func (m *IdleMonitor) idle() bool {
	if m.active.Load() > 0 || m.busy() {
		return false
	}
	return m.IdleTime() >= m.timeout
}

func (m *IdleMonitor) touch() {
	m.lastRequest.Store(m.now().UnixNano())
}

// Track marks the start of a request and returns the function ending it.
// Ignored requests are not tracked.
func (m *IdleMonitor) Track(r *http.Request) func() {
	if m.ignore(r) {
		return func() {}
	}
	m.active.Add(1)
	m.touch()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.active.Add(-1)
			m.touch()
		})
	}
}

// Middleware tracks every request passing through it.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := m.Track(r)
		defer done()
		next.ServeHTTP(w, r)
	})
}

// ActiveRequests returns the number of tracked requests in flight.
func (m *IdleMonitor) ActiveRequests() int64 {
	return m.active.Load()
}

// IdleTime returns the time since the last tracked request started or ended.
func (m *IdleMonitor) IdleTime() time.Duration {
	return m.now().Sub(time.Unix(0, m.lastRequest.Load()))
}

// IsProbe matches liveness probes and the banner, which should not keep
// the service alive.
func IsProbe(r *http.Request) bool {
	if strings.Contains(r.Header.Get("User-Agent"), "HealthCheck") {
		return true
	}
	switch r.URL.Path {
	case "/", "/health", "/healthz", "/livez", "/readyz":
		return true
	}
	return false
}
