package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/irisenroll/internal/repository"
	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

type ledgerOp struct {
	name string
	fn   func(context.Context) error
}

// ledgerRecorder feeds the run ledger from a single goroutine so a slow or
// hung Redis never backs up the completion stream. After the first failed
// write the rest of the run's writes are dropped.
type ledgerRecorder struct {
	ledger repository.LedgerRepository
	runID  string
	logger *slog.Logger
	ops    chan ledgerOp
	done   chan struct{}

	tripped bool
	dropped int
}

func startLedgerRecorder(ctx context.Context, ledger repository.LedgerRepository, runID string, logger *slog.Logger, capacity int) *ledgerRecorder {
	if capacity < 1 {
		capacity = 1
	}
	r := &ledgerRecorder{
		ledger: ledger,
		runID:  runID,
		logger: logger,
		ops:    make(chan ledgerOp, capacity),
		done:   make(chan struct{}),
	}
	go r.loop(ctx)
	return r
}

func (r *ledgerRecorder) loop(ctx context.Context) {
	defer close(r.done)
	for op := range r.ops {
		if r.tripped {
			r.dropped++
			continue
		}
		if err := op.fn(ctx); err != nil {
			r.tripped = true
			r.logger.Warn("ledger "+op.name+" failed, ledger disabled for this run", "err", err)
		}
	}
	if r.dropped > 0 {
		r.logger.Warn("ledger writes dropped", "count", r.dropped)
	}
}

func (r *ledgerRecorder) enqueue(op ledgerOp) {
	select {
	case r.ops <- op:
	default:
		r.logger.Warn("ledger queue full, dropping write", "op", op.name)
	}
}

func (r *ledgerRecorder) StartRun(rec domain.RunRecord) {
	r.enqueue(ledgerOp{name: "start run", fn: func(ctx context.Context) error {
		return r.ledger.StartRun(ctx, rec)
	}})
}

// RecordItem is a progress observer; it never blocks.
func (r *ledgerRecorder) RecordItem(c domain.Completion) {
	item := domain.NewItemRecord(c)
	r.enqueue(ledgerOp{name: "record item", fn: func(ctx context.Context) error {
		return r.ledger.RecordItem(ctx, r.runID, item)
	}})
}

func (r *ledgerRecorder) FinishRun(rec domain.RunRecord) {
	r.enqueue(ledgerOp{name: "finish run", fn: func(ctx context.Context) error {
		return r.ledger.FinishRun(ctx, rec)
	}})
}

// Close stops accepting writes and waits for the queue to drain. Once ctx
// is done the wait is cut to grace. It reports whether the drain completed.
func (r *ledgerRecorder) Close(ctx context.Context, grace time.Duration) bool {
	close(r.ops)
	select {
	case <-r.done:
		return true
	case <-ctx.Done():
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		r.logger.Warn("run interrupted before the ledger drained", "grace", grace.String())
		return false
	}
}
