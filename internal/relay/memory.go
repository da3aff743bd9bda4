package relay

import (
	"context"
	"sync"
)

// MemoryRelay is a process-local relay for dev mode and tests. It only
// reaches subscribers in the same process, which matches what a single-node
// deployment needs.
type MemoryRelay struct {
	mu   sync.RWMutex
	subs []func(Envelope)
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{}
}

func (r *MemoryRelay) Publish(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	r.mu.RLock()
	subs := make([]func(Envelope), len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()
	for _, fn := range subs {
		fn(env)
	}
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, fn func(Envelope)) error {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}
