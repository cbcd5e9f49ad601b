package evoke

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool(t *testing.T) {
	t.Run("runs submitted jobs", func(t *testing.T) {
		p := newWorkerPool(2, 0)

		var ran atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			if err := p.submit(func() {
				ran.Add(1)
				wg.Done()
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		wg.Wait()
		p.close()

		if ran.Load() != 10 {
			t.Errorf("ran = %d, want 10", ran.Load())
		}
	})

	t.Run("close drains queued jobs", func(t *testing.T) {
		p := newWorkerPool(1, 0)

		var ran atomic.Int32
		for i := 0; i < 5; i++ {
			_ = p.submit(func() { ran.Add(1) })
		}
		p.close()

		if ran.Load() != 5 {
			t.Errorf("ran = %d, want 5", ran.Load())
		}
	})

	t.Run("submit after close fails", func(t *testing.T) {
		p := newWorkerPool(1, 0)
		p.close()

		err := p.submit(func() {})
		if !errors.Is(err, ErrClosed) {
			t.Errorf("error = %v, want ErrClosed", err)
		}
	})

	t.Run("bounded queue rejects when full", func(t *testing.T) {
		p := newWorkerPool(1, 1)
		defer p.close()

		started := make(chan struct{})
		release := make(chan struct{})
		if err := p.submit(func() {
			close(started)
			<-release
		}); err != nil {
			t.Fatalf("submit blocker: %v", err)
		}
		<-started // worker holds the blocker; the queue is empty again

		if err := p.submit(func() {}); err != nil {
			t.Fatalf("submit filler: %v", err)
		}

		err := p.submit(func() {})
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("error = %v, want ErrQueueFull", err)
		}
		close(release)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		p := newWorkerPool(1, 0)
		p.close()
		p.close()
	})

	t.Run("zero workers falls back to one", func(t *testing.T) {
		p := newWorkerPool(0, 0)

		done := make(chan struct{})
		if err := p.submit(func() { close(done) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job never ran")
		}
		p.close()
	})
}
