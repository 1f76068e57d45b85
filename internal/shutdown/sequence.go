package shutdown

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sequence closes resources in the order they were added.
type Sequence struct {
	logger *slog.Logger
	steps  []step
}

type step struct {
	name string
	fn   func() error
}

// NewSequence creates an empty sequence.
func NewSequence(logger *slog.Logger) *Sequence {
	return &Sequence{logger: logger}
}

// Add appends a named close step.
func (s *Sequence) Add(name string, fn func() error) {
	s.steps = append(s.steps, step{name: name, fn: fn})
}

// Run executes every step, continuing past failures and panics, and
// returns all errors joined.
func (s *Sequence) Run() error {
	var errs []error
	for _, st := range s.steps {
		if err := s.runStep(st); err != nil {
			s.logger.Error("shutdown step failed", "step", st.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		s.logger.Debug("shutdown step done", "step", st.name)
	}
	s.steps = nil
	return errors.Join(errs...)
}

func (s *Sequence) runStep(st step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.fn()
}
