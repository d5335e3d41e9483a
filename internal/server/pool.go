package server

import (
	"context"
	"sync/atomic"
)

// searchPool bounds the number of engine searches running at once. Each
// search works on its own board copy, so the only shared resource is CPU.
type searchPool struct {
	sem    chan struct{}
	queued int64
	active int64
	total  int64
}

// PoolStats is a snapshot of the search pool.
type PoolStats struct {
	Active int64 `json:"active"`
	Queued int64 `json:"queued"`
	Total  int64 `json:"total"`
	Max    int   `json:"max"`
}

func newSearchPool(workers int) *searchPool {
	if workers <= 0 {
		workers = 4
	}
	return &searchPool{sem: make(chan struct{}, workers)}
}

// acquire waits for a free slot or for ctx to end.
func (p *searchPool) acquire(ctx context.Context) error {
	atomic.AddInt64(&p.queued, 1)
	defer atomic.AddInt64(&p.queued, -1)

	select {
	case p.sem <- struct{}{}:
		atomic.AddInt64(&p.active, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *searchPool) release() {
	atomic.AddInt64(&p.active, -1)
	atomic.AddInt64(&p.total, 1)
	<-p.sem
}

// run executes fn inside a slot.
func (p *searchPool) run(ctx context.Context, fn func() error) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return fn()
}

func (p *searchPool) stats() PoolStats {
	return PoolStats{
		Active: atomic.LoadInt64(&p.active),
		Queued: atomic.LoadInt64(&p.queued),
		Total:  atomic.LoadInt64(&p.total),
		Max:    cap(p.sem),
	}
}
