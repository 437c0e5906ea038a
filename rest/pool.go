// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/angus/internal/metrics"
)

// pool runs non-blocking requests on a fixed set of workers.
type pool struct {
	tasks   chan func()
	workers int
	warn    func(depth, workers int)

	depth atomic.Int64

	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
}

func newPool(workers, queueSize int, warn func(depth, workers int)) *pool {
	return &pool{
		tasks:   make(chan func(), queueSize),
		workers: workers,
		warn:    warn,
	}
}

func (p *pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for task := range p.tasks {
					metrics.SetQueueDepth(int(p.depth.Add(-1)))
					task()
				}
			}()
		}
	})
}

// Submit queues task. The depth warning is advisory; Submit only blocks when
// the hard queue cap is reached.
func (p *pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if depth := int(p.depth.Load()); depth > p.workers && p.warn != nil {
		p.warn(depth, p.workers)
	}
	metrics.SetQueueDepth(int(p.depth.Add(1)))
	p.tasks <- task
	return nil
}

// Depth returns the number of queued tasks not yet picked up by a worker.
func (p *pool) Depth() int {
	return int(p.depth.Load())
}

// Stop rejects new tasks, lets queued ones finish and waits for the workers.
func (p *pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Future is the handle of a non-blocking request.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	resp      *Response
	err       error
	completed bool
	callbacks []func(*Future)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Result blocks until the request finished.
func (f *Future) Result() (*Response, error) {
	<-f.done
	return f.resp, f.err
}

// Done is closed once the request finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// AddDoneCallback registers fn to run exactly once when the request finishes,
// on the worker that completed it. If the future already finished, fn runs
// immediately on the calling goroutine.
func (f *Future) AddDoneCallback(fn func(*Future)) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		fn(f)
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

func (f *Future) completedWith(sentinel error) bool {
	select {
	case <-f.done:
		return errors.Is(f.err, sentinel)
	default:
		return false
	}
}

func (f *Future) complete(resp *Response, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.resp, f.err = resp, err
	f.completed = true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(f)
	}
}
