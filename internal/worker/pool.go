package worker

import (
	"context"
	"sync"
)

// Pool bounds the number of runs executing at once using a semaphore.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit blocks until a slot is free or ctx is done, then runs fn on
// its own goroutine.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go func() {
			defer func() {
				<-p.sem
				p.wg.Done()
			}()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy returns the number of occupied slots.
func (p *Pool) Busy() int {
	return len(p.sem)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
