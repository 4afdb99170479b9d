package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// PanicError carries a panic recovered inside a pool task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type poolTask struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// WorkerPool is a fixed set of goroutines that run blocking work (OCR, LLM calls)
// for every request in the process. Create one and share it.
type WorkerPool struct {
	tasks     chan poolTask
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	size      int
}

// NewWorkerPool 创建并启动指定大小的工作池
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &WorkerPool{
		tasks:  make(chan poolTask),
		closed: make(chan struct{}),
		size:   size,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case t := <-p.tasks:
			t.done <- runTask(t)
		}
	}
}

func runTask(t poolTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return t.fn(t.ctx)
}

// Do runs fn on a pool worker and waits for it. It returns early with ctx.Err()
// if ctx ends first; fn observes the same ctx.
func (p *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	t := poolTask{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-p.closed:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.tasks <- t:
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Close stops the workers after their current task. Safe to call more than once.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.wg.Wait()
}
