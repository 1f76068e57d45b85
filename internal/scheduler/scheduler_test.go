package scheduler

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	panic bool
}

func (r *recorder) Invalidate(vendor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, vendor)
	if r.panic {
		panic("invalidate failed")
	}
}

func TestNewCacheReset(t *testing.T) {
	tests := []struct {
		name        string
		spec        string
		wantErr     bool
		wantEnabled bool
	}{
		{"disabled", "", false, false},
		{"standard", "0 4 * * *", false, true},
		{"descriptor", "@daily", false, true},
		{"invalid", "every morning", true, false},
		{"seconds field rejected", "0 0 4 * * *", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCacheReset(tt.spec, &recorder{}, testLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCacheReset() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", s.Enabled(), tt.wantEnabled)
			}
		})
	}
}

func TestCacheReset_InvalidatesAllVendors(t *testing.T) {
	rec := &recorder{}
	s, err := NewCacheReset("0 4 * * *", rec, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	next := s.Next()
	if next.IsZero() || next.Hour() != 4 || next.Minute() != 0 || !next.After(time.Now()) {
		t.Errorf("Next() = %v, want the coming 04:00", next)
	}

	s.cron.Entry(s.entry).WrappedJob.Run()
	if len(rec.calls) != 1 || rec.calls[0] != "" {
		t.Errorf("Invalidate calls = %q, want one call for all vendors", rec.calls)
	}
}

func TestCacheReset_RecoversPanics(t *testing.T) {
	rec := &recorder{panic: true}
	s, err := NewCacheReset("@hourly", rec, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.cron.Entry(s.entry).WrappedJob.Run()
	if len(rec.calls) != 1 {
		t.Errorf("Invalidate calls = %d", len(rec.calls))
	}
}

func TestCacheReset_DisabledNext(t *testing.T) {
	s, err := NewCacheReset("", &recorder{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	<-s.Stop().Done()
	if !s.Next().IsZero() {
		t.Errorf("Next() = %v, want zero", s.Next())
	}
}
