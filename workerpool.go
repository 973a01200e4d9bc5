package teximage

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool is the default Pool collaborator: a fixed number of
// worker goroutines draining a task channel, adapted from the
// channel-plus-WaitGroup worker pool pattern used for parallel EXR
// chunk decoding in the corpus's EXR reader.
type WorkerPool struct {
	tasks chan Task
	wg    sync.WaitGroup

	mu      sync.Mutex
	firstErr error
}

// NewWorkerPool starts numWorkers goroutines; numWorkers <= 0 selects
// runtime.GOMAXPROCS(0).
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{tasks: make(chan Task, numWorkers*4)}
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	for task := range p.tasks {
		err := task(context.Background())
		if err != nil {
			p.mu.Lock()
			if p.firstErr == nil {
				p.firstErr = err
			}
			p.mu.Unlock()
		}
		p.wg.Done()
	}
}

// Push implements Pool.
func (p *WorkerPool) Push(t Task) {
	p.wg.Add(1)
	p.tasks <- t
}

// WaitWork implements Pool: it blocks until every pushed task
// completes and returns the first error any of them produced. The
// context is not used to interrupt in-flight tasks — cancellation is
// cooperative via Progress.GetCancel, checked by each task itself.
func (p *WorkerPool) WaitWork(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// Close shuts down the pool's worker goroutines. Call only after the
// last WaitWork has returned.
func (p *WorkerPool) Close() {
	close(p.tasks)
}
