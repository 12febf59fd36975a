package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestMonitorSummarizesStream(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	var out bytes.Buffer
	var observed int
	m := NewMonitor(&out, start,
		WithClock(clock.Now),
		WithProgressBar(io.Discard, false),
		WithObserver(func(domain.Completion) { observed++ }),
	)

	m.Begin("run-1", 4)
	ch := make(chan domain.Completion, 4)
	ch <- domain.Completion{Source: domain.SourceFile{Path: "a_1_1.jpg"}, Status: domain.StatusEnrolled}
	ch <- domain.Completion{Source: domain.SourceFile{Path: "b_1_1.jpg"}, Status: domain.StatusFailed, Err: errors.New("decode image: EOF")}
	ch <- domain.Completion{Source: domain.SourceFile{Path: "c_1_1.jpg"}, Status: domain.StatusEnrolled}
	ch <- domain.Completion{Source: domain.SourceFile{Path: "d_1_1.jpg"}, Status: domain.StatusSkipped}
	close(ch)

	clock.t = start.Add(2500 * time.Millisecond)
	s := m.Consume(ch)

	if s.RunID != "run-1" || s.Total != 4 {
		t.Errorf("summary header = %+v", s)
	}
	if s.Enrolled != 2 || s.Failed != 1 || s.Skipped != 1 || s.Completed() != 4 {
		t.Errorf("counts = %d/%d/%d", s.Enrolled, s.Failed, s.Skipped)
	}
	if len(s.Failures) != 1 || s.Failures[0].Source.Path != "b_1_1.jpg" {
		t.Errorf("failures = %+v", s.Failures)
	}
	if s.Elapsed != 2500*time.Millisecond {
		t.Errorf("elapsed = %v, want 2.5s", s.Elapsed)
	}
	if observed != 4 {
		t.Errorf("observer saw %d completions, want 4", observed)
	}
	if !strings.Contains(out.String(), "Number of files for enrolling: 4") {
		t.Errorf("missing file count in output:\n%s", out.String())
	}

	m.Finish(s)
	report := out.String()
	for _, want := range []string{">>> Enrollment time: 2.500 [s]", "b_1_1.jpg", "decode image: EOF", "failed: 1"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestMonitorFinishWithoutFailures(t *testing.T) {
	var out bytes.Buffer
	m := NewMonitor(&out, time.Now())
	m.Finish(domain.RunSummary{Total: 3, Enrolled: 3, Elapsed: time.Second})
	if strings.Contains(out.String(), "Error") {
		t.Errorf("unexpected failure table:\n%s", out.String())
	}
	if !strings.Contains(out.String(), ">>> Enrollment time: 1.000 [s]") {
		t.Errorf("missing elapsed time:\n%s", out.String())
	}
}

func TestSummaryCopiesFailures(t *testing.T) {
	m := NewMonitor(io.Discard, time.Now())
	m.Begin("r", 1)
	m.Observe(domain.Completion{Source: domain.SourceFile{Path: "x"}, Status: domain.StatusFailed})
	s := m.Summary()
	s.Failures[0].Source.Path = "mutated"
	if m.Summary().Failures[0].Source.Path != "x" {
		t.Error("Summary() must not expose internal state")
	}
}
