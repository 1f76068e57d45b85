package shutdown

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMonitor(cfg IdleMonitorConfig) (*IdleMonitor, *clock) {
	clk := &clock{now: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)}
	cfg.Logger = testLogger()
	m := NewIdleMonitor(cfg)
	m.now = clk.Now
	m.touch()
	return m, clk
}

func TestIdleMonitor_Enabled(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    bool
	}{
		{"positive timeout enabled", time.Minute, true},
		{"zero timeout disabled", 0, false},
		{"negative timeout disabled", -time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(IdleMonitorConfig{Timeout: tt.timeout})
			if got := m.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdleMonitor_Idle(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		active  bool
		busy    bool
		want    bool
	}{
		{"before timeout", 30 * time.Second, false, false, false},
		{"at timeout", time.Minute, false, false, true},
		{"request in flight", 2 * time.Minute, true, false, false},
		{"page on loan", 2 * time.Minute, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clk := newMonitor(IdleMonitorConfig{
				Timeout: time.Minute,
				Busy:    func() bool { return tt.busy },
			})
			if tt.active {
				done := m.Track(httptest.NewRequest(http.MethodPost, "/baemin/soldout", nil))
				defer done()
			}
			clk.Advance(tt.elapsed)
			if got := m.idle(); got != tt.want {
				t.Errorf("idle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdleMonitor_Track(t *testing.T) {
	m, clk := newMonitor(IdleMonitorConfig{Timeout: time.Minute})

	clk.Advance(40 * time.Second)
	done := m.Track(httptest.NewRequest(http.MethodGet, "/coupang/get-menu-list", nil))
	if m.ActiveRequests() != 1 || m.IdleTime() != 0 {
		t.Errorf("active = %d idle = %v after start", m.ActiveRequests(), m.IdleTime())
	}
	clk.Advance(5 * time.Second)
	done()
	done()
	if m.ActiveRequests() != 0 || m.IdleTime() != 0 {
		t.Errorf("active = %d idle = %v after end", m.ActiveRequests(), m.IdleTime())
	}

	clk.Advance(10 * time.Second)
	probe := m.Track(httptest.NewRequest(http.MethodGet, "/health", nil))
	probe()
	if m.IdleTime() != 10*time.Second {
		t.Errorf("probe reset idle time to %v", m.IdleTime())
	}
}

func TestIdleMonitor_Middleware(t *testing.T) {
	m, _ := newMonitor(IdleMonitorConfig{Timeout: time.Minute})

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if m.ActiveRequests() != 1 {
			t.Errorf("active during handler = %d", m.ActiveRequests())
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ddangyo/get-shop-info", nil))

	if !called || m.ActiveRequests() != 0 {
		t.Errorf("called = %v active = %d", called, m.ActiveRequests())
	}
}

func TestIdleMonitor_SignalsDone(t *testing.T) {
	m := NewIdleMonitor(IdleMonitorConfig{
		Timeout:       time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
		Logger:        testLogger(),
	})
	m.Start()
	defer m.Stop()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle monitor did not signal")
	}
}

func TestIdleMonitor_DisabledNeverSignals(t *testing.T) {
	m := NewIdleMonitor(IdleMonitorConfig{Logger: testLogger()})
	m.Start()
	m.Stop()
	m.Stop()

	select {
	case <-m.Done():
		t.Error("disabled monitor signalled")
	default:
	}
}

func TestIsProbe(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		userAgent string
		want      bool
	}{
		{"health path", "/health", "", true},
		{"banner", "/", "", true},
		{"readyz path", "/readyz", "", true},
		{"fly health check agent", "/baemin/get-shop-info", "Fly-HealthCheck/1.0", true},
		{"vendor route", "/baemin/get-shop-info", "Mozilla/5.0", false},
		{"settings", "/settings", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			if got := IsProbe(req); got != tt.want {
				t.Errorf("IsProbe() = %v, want %v", got, tt.want)
			}
		})
	}
}
