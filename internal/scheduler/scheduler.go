// Package scheduler resets vendor caches on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Invalidator drops cached data; an empty vendor means every vendor.
type Invalidator interface {
	Invalidate(vendor string)
}

// CacheReset invalidates every vendor cache on a cron schedule, so data
// refreshes at a fixed time of day instead of drifting with the TTL.
type CacheReset struct {
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	target  Invalidator
	logger  *slog.Logger
	enabled bool
}

// NewCacheReset parses spec (standard five field cron or a descriptor such
// as "@daily"). An empty spec returns a disabled scheduler.
func NewCacheReset(spec string, target Invalidator, logger *slog.Logger) (*CacheReset, error) {
	s := &CacheReset{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		spec:   spec,
		target: target,
		logger: logger,
	}
	if spec == "" {
		return s, nil
	}

	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_RESET_CRON %q: %w", spec, err)
	}
	s.entry = id
	s.enabled = true
	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *CacheReset) Enabled() bool {
	return s.enabled
}

// Start runs the schedule in the background.
func (s *CacheReset) Start() {
	if !s.enabled {
		s.logger.Info("scheduled cache reset disabled (set CACHE_RESET_CRON to enable)")
		return
	}
	s.cron.Start()
	s.logger.Info("scheduled cache reset started", "spec", s.spec, "next_run", s.Next())
}

// Stop halts the schedule. The returned context is done once a running
// reset has finished.
func (s *CacheReset) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next scheduled reset, or the zero time when not running.
func (s *CacheReset) Next() time.Time {
	if !s.enabled {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *CacheReset) run() {
	s.logger.Info("scheduled cache reset")
	s.target.Invalidate("")
}
