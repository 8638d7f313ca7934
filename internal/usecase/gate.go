package usecase

import (
	"fmt"
	"sync"
	"wa-blaster/pkg/apperr"
)

// Gate admits one holder of the chat session at a time. A batch and an
// auto-reply tick both need exclusive use of the open chat.
type Gate struct {
	mu     sync.Mutex
	holder string
}

func NewGate() *Gate {
	return &Gate{}
}

// TryAcquire takes the gate for holder without waiting. The returned
// release func is safe to call more than once.
func (g *Gate) TryAcquire(holder string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != "" {
		return nil, false
	}

	g.holder = holder

	var once sync.Once

	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.holder = ""
			g.mu.Unlock()
		})
	}, true
}

// Holder names the current holder, or "" when the gate is free.
func (g *Gate) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}

// Acquire is TryAcquire reporting a taken gate as a busy error for op.
func (g *Gate) Acquire(op, holder string) (release func(), err error) {
	release, ok := g.TryAcquire(holder)
	if !ok {
		return nil, apperr.Wrap(op, apperr.CodeBusy, fmt.Errorf("session is busy with %s", g.Holder()), map[string]any{
			apperr.MetaReason: "session_busy",
			apperr.MetaStage:  apperr.StagePreparation,
		})
	}

	return release, nil
}
