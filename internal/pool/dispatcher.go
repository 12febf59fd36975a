package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

var (
	ErrAborted   = errors.New("run aborted after an earlier failure")
	ErrTaskPanic = errors.New("task panicked")
)

// Task processes one source file and returns the artifact it produced.
type Task func(ctx context.Context, worker int, src domain.SourceFile) (string, error)

// Dispatcher runs a fixed number of workers over a backlog of files.
type Dispatcher struct {
	workers int
	policy  domain.FailurePolicy
	logger  *slog.Logger
	now     func() time.Time
}

func NewDispatcher(workers int, policy domain.FailurePolicy, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if !policy.Valid() {
		policy = domain.PolicyIsolate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{workers: workers, policy: policy, logger: logger, now: time.Now}
}

func (d *Dispatcher) Workers() int { return d.workers }

// Run starts the pool and returns the completion stream. Every file yields
// exactly one completion, in no particular order; the channel is closed once
// the backlog is drained and all workers have exited.
//
// Once ctx is done, or after the first failure under PolicyAbort, files that
// were not yet handed to a worker complete as SKIPPED. Tasks run under the
// caller's ctx, so an abort lets in-flight files finish while an interrupt
// reaches them too.
func (d *Dispatcher) Run(ctx context.Context, files []domain.SourceFile, task Task) <-chan domain.Completion {
	out := make(chan domain.Completion, d.workers)
	jobs := make(chan domain.SourceFile)
	runCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, f := range files {
			select {
			case <-runCtx.Done():
				for _, rest := range files[i:] {
					out <- d.skipped(ctx, rest)
				}
				return
			case jobs <- f:
			}
		}
	}()

	for w := 1; w <= d.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for src := range jobs {
				if runCtx.Err() != nil {
					out <- d.skipped(ctx, src)
					continue
				}
				c := d.execute(ctx, worker, src, task)
				if c.Status == domain.StatusFailed && d.policy == domain.PolicyAbort {
					cancel()
				}
				out <- c
			}
		}(w)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out
}

func (d *Dispatcher) execute(ctx context.Context, worker int, src domain.SourceFile, task Task) (c domain.Completion) {
	start := d.now()
	c = domain.Completion{Source: src, Worker: worker}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", "worker", worker, "source", src.Path, "panic", r, "stack", string(debug.Stack()))
			c.Status = domain.StatusFailed
			c.Err = fmt.Errorf("%w: %s: %v", ErrTaskPanic, src.Path, r)
			c.Duration = d.now().Sub(start)
		}
	}()

	artifact, err := task(ctx, worker, src)
	c.Duration = d.now().Sub(start)
	if err != nil {
		c.Status = domain.StatusFailed
		c.Err = err
		d.logger.Debug("item failed", "worker", worker, "source", src.Path, "duration", c.Duration, "err", err)
		return c
	}
	c.Status = domain.StatusEnrolled
	c.Artifact = artifact
	d.logger.Debug("item enrolled", "worker", worker, "source", src.Path, "artifact", artifact, "duration", c.Duration)
	return c
}

// skipped reports why a file was never started: the caller's context error
// when the run was interrupted, ErrAborted otherwise.
func (d *Dispatcher) skipped(parent context.Context, src domain.SourceFile) domain.Completion {
	err := parent.Err()
	if err == nil {
		err = ErrAborted
	}
	return domain.Completion{Source: src, Status: domain.StatusSkipped, Err: err}
}
