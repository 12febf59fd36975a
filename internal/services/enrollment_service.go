package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/osvaldoandrade/irisenroll/internal/artifact"
	"github.com/osvaldoandrade/irisenroll/internal/extractor"
	"github.com/osvaldoandrade/irisenroll/internal/metrics"
	"github.com/osvaldoandrade/irisenroll/internal/pool"
	"github.com/osvaldoandrade/irisenroll/internal/progress"
	"github.com/osvaldoandrade/irisenroll/internal/repository"
	"github.com/osvaldoandrade/irisenroll/internal/selector"
	"github.com/osvaldoandrade/irisenroll/internal/tracing"
	"github.com/osvaldoandrade/irisenroll/pkg/domain"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrRunLocked   = errors.New("target directory is locked by another run")
	ErrItemsFailed = errors.New("enrollment failed for some items")
)

// ledgerDrainGrace bounds the wait for pending ledger writes after the run
// is interrupted.
const ledgerDrainGrace = 2 * time.Second

type EnrollmentService interface {
	Run(ctx context.Context) (*domain.RunSummary, error)
}

// Output controls where a run reports to.
type Output struct {
	Stdout          io.Writer
	Progress        io.Writer
	ShowProgress    bool
	MetricsTextfile string
}

type enrollmentService struct {
	cfg     domain.RunConfiguration
	adapter *extractor.Adapter
	writer  artifact.Writer
	ledger  repository.LedgerRepository
	logger  *slog.Logger
	now     func() time.Time
	out     Output
}

func NewEnrollmentService(cfg domain.RunConfiguration, adapter *extractor.Adapter, writer artifact.Writer, ledger repository.LedgerRepository, logger *slog.Logger, now func() time.Time, out Output) EnrollmentService {
	if ledger == nil {
		ledger = repository.NewNoopLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if out.Stdout == nil {
		out.Stdout = io.Discard
	}
	if out.Progress == nil {
		out.Progress = io.Discard
	}
	if cfg.Pattern == "" {
		cfg.Pattern = selector.DefaultPattern
	}
	if !cfg.FailurePolicy.Valid() {
		cfg.FailurePolicy = domain.PolicyIsolate
	}
	return &enrollmentService{
		cfg:     cfg,
		adapter: adapter,
		writer:  writer,
		ledger:  ledger,
		logger:  logger,
		now:     now,
		out:     out,
	}
}

// LockPath is the advisory lock guarding targetDir.
func LockPath(targetDir string) string {
	return filepath.Clean(targetDir) + ".lock"
}

func (s *enrollmentService) Run(ctx context.Context) (*domain.RunSummary, error) {
	start := s.now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	ctx, span := tracing.Tracer("enrollment").Start(ctx, "irisenroll.run",
		trace.WithAttributes(
			attribute.String("irisenroll.run_id", runID),
			attribute.String("irisenroll.source_dir", s.cfg.SourceDir),
			attribute.String("irisenroll.target_dir", s.cfg.TargetDir),
			attribute.String("irisenroll.failure_policy", string(s.cfg.FailurePolicy)),
		),
	)
	defer span.End()

	fail := func(err error) (*domain.RunSummary, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := selector.CheckDir(s.cfg.SourceDir); err != nil {
		return fail(err)
	}
	if err := s.ensureTargetDir(); err != nil {
		return fail(err)
	}

	lockPath := LockPath(s.cfg.TargetDir)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fail(fmt.Errorf("lock %s: %w", lockPath, err))
	}
	if !locked {
		return fail(fmt.Errorf("%w: %s", ErrRunLocked, lockPath))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release run lock", "path", lockPath, "err", err)
		}
	}()

	files, err := selector.Select(s.cfg.SourceDir, s.cfg.Pattern)
	if err != nil {
		return fail(err)
	}

	dispatcher := pool.NewDispatcher(s.cfg.Workers, s.cfg.FailurePolicy, logger)
	workers := dispatcher.Workers()
	span.SetAttributes(
		attribute.Int("irisenroll.items", len(files)),
		attribute.Int("irisenroll.workers", workers),
	)
	logger.Info("enrollment started", "source_dir", s.cfg.SourceDir, "target_dir", s.cfg.TargetDir, "items", len(files), "workers", workers)

	record := domain.RunRecord{
		RunID:     runID,
		SourceDir: s.cfg.SourceDir,
		TargetDir: s.cfg.TargetDir,
		Pattern:   s.cfg.Pattern,
		Workers:   workers,
		Policy:    s.cfg.FailurePolicy,
		Total:     len(files),
		StartedAt: start,
	}
	// Ledger writes must land even after the run context is cancelled.
	ledger := startLedgerRecorder(context.WithoutCancel(ctx), s.ledger, runID, logger, len(files)+2)
	ledger.StartRun(record)

	monitor := progress.NewMonitor(s.out.Stdout, start,
		progress.WithProgressBar(s.out.Progress, s.out.ShowProgress),
		progress.WithLogger(logger),
		progress.WithClock(s.now),
		progress.WithObserver(metrics.ObserveCompletion),
		progress.WithObserver(ledger.RecordItem),
	)
	monitor.Begin(runID, len(files))

	summary := monitor.Consume(dispatcher.Run(ctx, files, s.enrollItem))

	finished := s.now()
	record.Enrolled = summary.Enrolled
	record.Failed = summary.Failed
	record.Skipped = summary.Skipped
	record.FinishedAt = &finished
	record.ElapsedMs = summary.Elapsed.Milliseconds()
	ledger.FinishRun(record)
	ledger.Close(ctx, ledgerDrainGrace)

	metrics.ObserveRun(summary)
	if s.out.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(s.out.MetricsTextfile); err != nil {
			logger.Warn("write metrics textfile", "path", s.out.MetricsTextfile, "err", err)
		}
	}

	monitor.Finish(summary)
	logger.Info("enrollment finished",
		"enrolled", summary.Enrolled,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"elapsed", summary.Elapsed.String(),
	)

	span.SetAttributes(
		attribute.Int("irisenroll.enrolled", summary.Enrolled),
		attribute.Int("irisenroll.failed", summary.Failed),
		attribute.Int("irisenroll.skipped", summary.Skipped),
	)
	switch {
	case summary.Failed > 0:
		err = fmt.Errorf("%w: %d of %d", ErrItemsFailed, summary.Failed, summary.Total)
	case ctx.Err() != nil && summary.Skipped > 0:
		err = fmt.Errorf("enrollment interrupted: %w", ctx.Err())
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return &summary, err
}

func (s *enrollmentService) ensureTargetDir() error {
	info, err := os.Stat(s.cfg.TargetDir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("target %s is not a directory", s.cfg.TargetDir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat target %s: %w", s.cfg.TargetDir, err)
	}
	fmt.Fprintln(s.out.Stdout, "makedirs", s.cfg.TargetDir)
	if err := os.MkdirAll(s.cfg.TargetDir, 0o755); err != nil {
		return fmt.Errorf("create target %s: %w", s.cfg.TargetDir, err)
	}
	return nil
}

// enrollItem is the per-item task: extract, then persist.
func (s *enrollmentService) enrollItem(ctx context.Context, worker int, src domain.SourceFile) (string, error) {
	ctx, span := tracing.Tracer("enrollment").Start(ctx, "irisenroll.item",
		trace.WithAttributes(
			attribute.String("irisenroll.source", src.Path),
			attribute.Int("irisenroll.worker", worker),
		),
	)
	defer span.End()

	metrics.ItemsInFlight.Inc()
	defer metrics.ItemsInFlight.Dec()

	t0 := time.Now()
	res, err := s.adapter.Extract(ctx, src)
	metrics.ExtractionSeconds.Observe(time.Since(t0).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract")
		return "", err
	}

	// An extracted result is persisted even if the run is interrupted meanwhile.
	t1 := time.Now()
	path, err := s.writer.Write(context.WithoutCancel(ctx), artifact.Name(src), res)
	metrics.WriteSeconds.Observe(time.Since(t1).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write")
		return "", err
	}
	span.SetAttributes(attribute.String("irisenroll.artifact", path))
	return path, nil
}
