package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/osvaldoandrade/irisenroll/internal/artifact"
	"github.com/osvaldoandrade/irisenroll/internal/extractor"
	"github.com/osvaldoandrade/irisenroll/internal/providers"
	"github.com/osvaldoandrade/irisenroll/internal/repository"
	"github.com/osvaldoandrade/irisenroll/internal/services"
	"github.com/osvaldoandrade/irisenroll/internal/tracing"
	"github.com/osvaldoandrade/irisenroll/pkg/config"
	"github.com/osvaldoandrade/irisenroll/pkg/domain"

	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config          *config.Config
	Enrollment      services.EnrollmentService
	Ledger          repository.LedgerRepository
	Logger          *slog.Logger
	TracingShutdown func(context.Context) error

	extractor extractor.Extractor
	output    services.Output
	logOut    io.Writer
	redis     *redis.Client
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithExtractor replaces the extractor selected by config.
func WithExtractor(ext extractor.Extractor) ApplicationOption {
	return func(app *Application) error {
		if ext == nil {
			return errors.New("nil extractor")
		}
		app.extractor = ext
		return nil
	}
}

// WithLedger replaces the Redis ledger selected by config.
func WithLedger(ledger repository.LedgerRepository) ApplicationOption {
	return func(app *Application) error {
		app.Ledger = ledger
		return nil
	}
}

// WithOutput sets where the run prints its report and progress bar.
func WithOutput(out services.Output) ApplicationOption {
	return func(app *Application) error {
		app.output = out
		return nil
	}
}

// WithLogWriter sends structured logs to w instead of stderr.
func WithLogWriter(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOut = w
		return nil
	}
}

func NewApplication(ctx context.Context, cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		Config: cfg,
		output: services.Output{Stdout: os.Stdout, Progress: os.Stderr},
		logOut: os.Stderr,
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	app.Logger = NewLogger(app.logOut, cfg)
	slog.SetDefault(app.Logger)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, app.Logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	if app.extractor == nil {
		ext, err := extractor.New(extractorConfig(cfg.Extractor))
		if err != nil {
			return nil, err
		}
		app.extractor = ext
	}

	if app.Ledger == nil {
		app.Ledger = repository.NewNoopLedger()
		if cfg.Ledger.RedisAddr != "" {
			rdb := providers.NewRedisProvider(cfg.Ledger.RedisAddr, cfg.Ledger.RedisPassword)
			if err := rdb.Ping(ctx).Err(); err != nil {
				app.Logger.Warn("run ledger unavailable, continuing without it", "addr", cfg.Ledger.RedisAddr, "err", err)
				_ = rdb.Close()
			} else {
				app.redis = rdb
				app.Ledger = repository.NewLedgerRepository(rdb, cfg.Ledger.KeyPrefix)
			}
		}
	}

	if app.output.MetricsTextfile == "" {
		app.output.MetricsTextfile = cfg.Metrics.TextfilePath
	}

	uploader := providers.NewLocalUploader(cfg.TempDir)
	writer := artifact.NewMatWriter(uploader)
	app.Enrollment = services.NewEnrollmentService(
		RunConfiguration(cfg),
		extractor.NewAdapter(app.extractor),
		writer,
		app.Ledger,
		app.Logger,
		time.Now,
		app.output,
	)
	return app, nil
}

// Close flushes traces and releases the ledger connection.
func (app *Application) Close(ctx context.Context) error {
	var errs []error
	if app.TracingShutdown != nil {
		errs = append(errs, app.TracingShutdown(ctx))
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	return errors.Join(errs...)
}

func RunConfiguration(cfg *config.Config) domain.RunConfiguration {
	return domain.RunConfiguration{
		SourceDir:     cfg.DataDir,
		TargetDir:     cfg.TempDir,
		Workers:       cfg.NCores,
		Pattern:       cfg.Pattern,
		FailurePolicy: domain.FailurePolicy(cfg.FailurePolicy),
	}
}

func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "irisenroll", "env", cfg.Env)
}

func extractorConfig(c config.ExtractorConfig) extractor.Config {
	return extractor.Config{
		Kind: c.Kind,
		Grid: extractor.GridConfig{
			Rows:     c.Rows,
			Cols:     c.Cols,
			MaskLow:  c.MaskLow,
			MaskHigh: c.MaskHigh,
		},
		Command: extractor.CommandConfig{
			Command:          c.Command,
			Args:             c.Args,
			SingleThreadFlag: c.SingleThreadFlag,
		},
	}
}
