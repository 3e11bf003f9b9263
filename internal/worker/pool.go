// Package worker provides a bounded worker pool for concurrent fetch work.
package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job
type Result interface {
	Err() error
}

// Pool runs jobs on a fixed number of workers. Usage: Start, Submit all jobs,
// then Drain to collect results. A pool is single-use.
type Pool struct {
	workers  int
	jobs     chan Job
	results  chan Result
	wg       sync.WaitGroup
	closeRes sync.Once
}

// NewPool creates a pool with the given worker count. The queue capacity must
// cover the number of jobs the caller will submit before draining, otherwise
// Submit blocks against a full results buffer.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < workers*2 {
		queue = workers * 2
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, queue),
		results: make(chan Result, queue),
	}
}

// Start launches the workers; they exit when the job queue closes or the
// context is cancelled
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Execute(ctx)
			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit enqueues a job; it drops the job if the context is already done
func (p *Pool) Submit(ctx context.Context, job Job) {
	select {
	case <-ctx.Done():
	case p.jobs <- job:
	}
}

// Drain closes the queue, waits for the workers, and returns all results.
// Fewer results than submitted jobs means the context was cancelled mid-run.
func (p *Pool) Drain() []Result {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		p.closeRes.Do(func() { close(p.results) })
	}()

	var results []Result
	for r := range p.results {
		results = append(results, r)
	}
	return results
}
