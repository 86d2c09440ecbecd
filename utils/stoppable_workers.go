package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers runs background goroutines that share one cancelable context.
type StoppableWorkers struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup
}

// NewStoppableWorkers starts each of funcs in its own goroutine.
func NewStoppableWorkers(funcs ...func(context.Context)) *StoppableWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	sw := &StoppableWorkers{ctx: ctx, cancel: cancel}
	sw.AddWorkers(funcs...)
	return sw
}

// AddWorkers starts more goroutines. After Stop it does nothing.
func (sw *StoppableWorkers) AddWorkers(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ctx.Err() != nil {
		return
	}
	sw.active.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.active.Done()
			f(sw.ctx)
		})
	}
}

// Stop cancels the shared context and waits for every worker to return.
func (sw *StoppableWorkers) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cancel()
	sw.active.Wait()
}

// Context is the context the workers receive.
func (sw *StoppableWorkers) Context() context.Context {
	return sw.ctx
}
