package shutdown

import (
	"errors"
	"strings"
	"testing"
)

func TestSequence_Run(t *testing.T) {
	var order []string
	s := NewSequence(testLogger())
	s.Add("pool", func() error { order = append(order, "pool"); return nil })
	s.Add("browser", func() error { order = append(order, "browser"); return errors.New("already gone") })
	s.Add("panicky", func() error { order = append(order, "panicky"); panic("boom") })
	s.Add("cookie store", func() error { order = append(order, "cookie store"); return nil })

	err := s.Run()
	if got := strings.Join(order, ","); got != "pool,browser,panicky,cookie store" {
		t.Errorf("order = %s", got)
	}
	if err == nil || !strings.Contains(err.Error(), "browser: already gone") || !strings.Contains(err.Error(), "panicky: panic: boom") {
		t.Errorf("Run() error = %v", err)
	}

	order = nil
	if err := s.Run(); err != nil || len(order) != 0 {
		t.Errorf("second Run() = %v, ran %v", err, order)
	}
}
