package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type countJob struct {
	counter *atomic.Int64
	fail    bool
}

type countResult struct {
	err error
}

func (r countResult) Err() error { return r.err }

func (j countJob) Execute(ctx context.Context) Result {
	j.counter.Add(1)
	if j.fail {
		return countResult{err: errors.New("boom")}
	}
	return countResult{}
}

func TestPool_RunsAllJobs(t *testing.T) {
	var counter atomic.Int64
	const jobs = 20
	pool := NewPool(4, jobs)
	ctx := context.Background()
	pool.Start(ctx)
	for i := 0; i < jobs; i++ {
		pool.Submit(ctx, countJob{counter: &counter, fail: i%5 == 0})
	}
	results := pool.Drain()

	if counter.Load() != jobs {
		t.Errorf("expected %d executions, got %d", jobs, counter.Load())
	}
	if len(results) != jobs {
		t.Fatalf("expected %d results, got %d", jobs, len(results))
	}
	failed := 0
	for _, r := range results {
		if r.Err() != nil {
			failed++
		}
	}
	if failed != 4 {
		t.Errorf("expected 4 failures, got %d", failed)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	var counter atomic.Int64
	pool := NewPool(2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	pool.Submit(ctx, countJob{counter: &counter})
	results := pool.Drain()
	if len(results) > 1 {
		t.Errorf("expected at most 1 result after cancellation, got %d", len(results))
	}
}

func TestPool_ZeroWorkersClamped(t *testing.T) {
	pool := NewPool(0, 0)
	if pool.workers != 1 {
		t.Errorf("expected worker count clamped to 1, got %d", pool.workers)
	}
}
