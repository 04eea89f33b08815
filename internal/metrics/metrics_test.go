package metrics

import (
	"io"
	"os"
	"path/filepath"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveRequest("efetch", 200, 10*time.Millisecond)
	m.ObserveRequest("efetch", 200, 20*time.Millisecond)
	m.ObserveRequest("esearch", 0, time.Millisecond)
	m.AddRuns("metadata", OutcomeOK, 3)
	m.AddRuns("metadata", OutcomeFailed, 1)
	m.AddRuns("metadata", OutcomeFailed, 0)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"efetch 200", testutil.ToFloat64(m.entrezRequests.WithLabelValues("efetch", "200")), 2},
		{"esearch transport error", testutil.ToFloat64(m.entrezRequests.WithLabelValues("esearch", "0")), 1},
		{"metadata ok", testutil.ToFloat64(m.runs.WithLabelValues("metadata", OutcomeOK)), 3},
		{"metadata failed", testutil.ToFloat64(m.runs.WithLabelValues("metadata", OutcomeFailed)), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("efetch", 200, time.Second)
	m.AddRuns("sequences", OutcomeOK, 1)
	m.ObserveStage("sequences", time.Now())
	if err := m.WriteTextfile("/nonexistent/dir/srafetch.prom"); err != nil {
		t.Errorf("nil WriteTextfile: %v", err)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.AddRuns("resolve", OutcomeOK, 2)
	m.ObserveStage("resolve", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`srafetch_runs_total{outcome="ok",stage="resolve"} 2`,
		`srafetch_stage_seconds_count{stage="resolve"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AddRuns("sequences", OutcomeFailed, 4)

	path := filepath.Join(t.TempDir(), "srafetch.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := `srafetch_runs_total{outcome="failed",stage="sequences"} 4`; !strings.Contains(string(data), want) {
		t.Errorf("textfile missing %q", want)
	}
}
