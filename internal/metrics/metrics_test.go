package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"
)

func TestObserveCompletion(t *testing.T) {
	before := testutil.ToFloat64(ItemsTotal.WithLabelValues(string(domain.StatusFailed)))
	ObserveCompletion(domain.Completion{Status: domain.StatusFailed})
	after := testutil.ToFloat64(ItemsTotal.WithLabelValues(string(domain.StatusFailed)))
	if after-before != 1 {
		t.Errorf("items_total{status=FAILED} grew by %v, want 1", after-before)
	}
}

func TestObserveRun(t *testing.T) {
	ObserveRun(domain.RunSummary{Enrolled: 7, Failed: 2, Skipped: 1, Elapsed: 3 * time.Second})
	if got := testutil.ToFloat64(RunDurationSeconds); got != 3 {
		t.Errorf("run_duration_seconds = %v, want 3", got)
	}
	if got := testutil.ToFloat64(RunItems.WithLabelValues(string(domain.StatusEnrolled))); got != 7 {
		t.Errorf("run_items{ENROLLED} = %v, want 7", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	ObserveRun(domain.RunSummary{Enrolled: 1})
	path := filepath.Join(t.TempDir(), "irisenroll.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "irisenroll_run_items") {
		t.Errorf("textfile missing run metrics:\n%s", b)
	}
}

func TestEngineRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewEngine(nil)

	for _, path := range []string{"/metrics", "/healthz"} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
