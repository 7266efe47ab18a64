package worker

import (
	"context"
	"sync"
)

// Job is one unit of work, typically a single fund's rebuild.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job returns.
type Result interface {
	GetError() error
}

// Pool runs jobs over a bounded number of goroutines. Funds are
// independent, so the pool carries no shared state beyond the queues.
type Pool struct {
	workers   int
	jobs      chan Job
	results   chan Result
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPool creates a pool with the given concurrency. The parent
// context cancels in-flight and queued jobs; a job already executing
// decides for itself how to honor cancellation.
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. Dropped silently after cancellation.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Results exposes the result channel for streaming consumption while
// jobs are still running.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Wait closes the queue, waits for the workers to drain it, and
// returns everything they produced.
func (p *Pool) Wait() []Result {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for r := range p.results {
		results = append(results, r)
	}
	return results
}

// Done closes the queue and signals completion on the returned channel
// once all workers exit. Used together with Results for streaming.
func (p *Pool) Done() <-chan struct{} {
	close(p.jobs)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.closeResults()
		close(done)
	}()
	return done
}

// Shutdown cancels outstanding work and waits for the workers.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
