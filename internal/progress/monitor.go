package progress

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

// Monitor turns the completion stream into user-facing progress and a run
// summary. It never feeds data back into the pipeline.
type Monitor struct {
	out       io.Writer
	barOut    io.Writer
	showBar   bool
	logger    *slog.Logger
	now       func() time.Time
	observers []func(domain.Completion)

	bar     *progressbar.ProgressBar
	summary domain.RunSummary
}

type Option func(*Monitor)

// WithProgressBar renders the bar to w when visible is true.
func WithProgressBar(w io.Writer, visible bool) Option {
	return func(m *Monitor) {
		m.barOut = w
		m.showBar = visible
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithObserver registers fn to be called for every completion.
func WithObserver(fn func(domain.Completion)) Option {
	return func(m *Monitor) { m.observers = append(m.observers, fn) }
}

// NewMonitor measures elapsed time from start, the moment the run began.
func NewMonitor(out io.Writer, start time.Time, opts ...Option) *Monitor {
	m := &Monitor{
		out:    out,
		barOut: io.Discard,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.summary.StartedAt = start
	return m
}

func (m *Monitor) Begin(runID string, total int) {
	m.summary.RunID = runID
	m.summary.Total = total
	fmt.Fprintln(m.out, "Number of files for enrolling:", total)
	fmt.Fprintln(m.out, "Start enrolling...")
	m.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(m.barOut),
		progressbar.OptionSetVisibility(m.showBar),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(m.barOut) }),
	)
}

func (m *Monitor) Observe(c domain.Completion) {
	switch c.Status {
	case domain.StatusEnrolled:
		m.summary.Enrolled++
	case domain.StatusFailed:
		m.summary.Failed++
		m.summary.Failures = append(m.summary.Failures, c)
		m.logger.Warn("enrollment failed", "source", c.Source.Path, "worker", c.Worker, "err", c.Err)
	case domain.StatusSkipped:
		m.summary.Skipped++
	}
	if m.bar != nil {
		_ = m.bar.Add(1)
	}
	for _, fn := range m.observers {
		fn(c)
	}
}

// Consume drains ch and returns the summary once the stream closes.
func (m *Monitor) Consume(ch <-chan domain.Completion) domain.RunSummary {
	for c := range ch {
		m.Observe(c)
	}
	if m.bar != nil {
		_ = m.bar.Finish()
	}
	m.summary.Elapsed = m.now().Sub(m.summary.StartedAt)
	return m.Summary()
}

func (m *Monitor) Summary() domain.RunSummary {
	s := m.summary
	s.Failures = append([]domain.Completion(nil), m.summary.Failures...)
	return s
}

// Finish prints the elapsed time and, if any item failed, a failure table.
func (m *Monitor) Finish(s domain.RunSummary) {
	fmt.Fprintf(m.out, "\n>>> Enrollment time: %.3f [s]\n\n", s.Elapsed.Seconds())
	if s.Failed == 0 && s.Skipped == 0 {
		return
	}
	fmt.Fprintf(m.out, "Enrolled: %d, failed: %d, skipped: %d of %d\n", s.Enrolled, s.Failed, s.Skipped, s.Total)
	if len(s.Failures) > 0 {
		fmt.Fprintln(m.out, FailureTable(s.Failures))
	}
}

// FailureTable renders failed items with the error that stopped them.
func FailureTable(failures []domain.Completion) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Source", "Worker", "Duration", "Error"})
	for _, c := range failures {
		msg := ""
		if c.Err != nil {
			msg = c.Err.Error()
		}
		tw.AppendRow(table.Row{c.Source.Path, c.Worker, c.Duration.Round(time.Millisecond).String(), msg})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: 80},
	})
	return tw.Render()
}
