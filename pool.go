package evoke

import (
	"sync"

	"github.com/eapache/queue"
)

// workerPool runs async-mode dispatches. Jobs are queued FIFO; a bounded
// queue rejects rather than blocks the transport's delivery goroutine.
type workerPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     *queue.Queue
	capacity int
	closed   bool
	wg       sync.WaitGroup
}

func newWorkerPool(workers, capacity int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &workerPool{
		jobs:     queue.New(),
		capacity: capacity,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *workerPool) submit(job func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.capacity > 0 && p.jobs.Length() >= p.capacity {
		p.mu.Unlock()
		return ErrQueueFull
	}
	p.jobs.Add(job)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

func (p *workerPool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.jobs.Length() == 0 {
			p.mu.Unlock()
			return
		}
		job := p.jobs.Remove().(func())
		p.mu.Unlock()
		job()
	}
}

// close drains queued jobs and waits for workers to finish.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
