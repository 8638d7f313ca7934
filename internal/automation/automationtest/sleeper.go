package automationtest

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Sleeps records requested pauses instead of waiting.
type Sleeps struct {
	mu   sync.Mutex
	all  []time.Duration
	hook func(d time.Duration)
}

// OnSleep registers fn to run on every recorded pause.
func (s *Sleeps) OnSleep(fn func(d time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *Sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.all = append(s.all, d)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(d)
	}

	return ctx.Err()
}

func (s *Sleeps) All() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.all)
}

// Total sums every recorded pause.
func (s *Sleeps) Total() time.Duration {
	var total time.Duration
	for _, d := range s.All() {
		total += d
	}

	return total
}
