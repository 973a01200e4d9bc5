package teximage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var counter atomic.Int64
	for i := 0; i < 20; i++ {
		p.Push(func(ctx context.Context) error {
			counter.Add(1)
			return nil
		})
	}
	if err := p.WaitWork(context.Background()); err != nil {
		t.Fatalf("WaitWork: %v", err)
	}
	if counter.Load() != 20 {
		t.Fatalf("expected 20 tasks run, got %d", counter.Load())
	}
}

func TestWorkerPoolReturnsFirstError(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Close()

	want := errors.New("boom")
	p.Push(func(ctx context.Context) error { return want })
	p.Push(func(ctx context.Context) error { return nil })

	err := p.WaitWork(context.Background())
	if err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestWorkerPoolDefaultsWorkerCount(t *testing.T) {
	p := NewWorkerPool(0)
	defer p.Close()
	if err := p.WaitWork(context.Background()); err != nil {
		t.Fatalf("WaitWork with no tasks: %v", err)
	}
}
