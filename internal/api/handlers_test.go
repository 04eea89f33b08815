package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/metadata"
	"github.com/nishad/srafetch/internal/metrics"
	"github.com/nishad/srafetch/internal/search"
	"github.com/nishad/srafetch/internal/testutil"
)

// setupTestServer creates a server over the fixture store and an in-memory
// index of the same runs.
func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	db, dbCleanup := testutil.TestDBWithFixtures(t)
	index, err := search.NewMemOnly()
	testutil.RequireNoError(t, err, "NewMemOnly")
	_, err = index.IndexTable(testutil.RunTable(t))
	testutil.RequireNoError(t, err, "IndexTable")

	s := NewServer(Config{EnableCORS: true}, db, index, metrics.New())
	return s, func() {
		index.Close()
		dbCleanup()
	}
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStatusCodes(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	tests := []struct {
		target string
		want   int
	}{
		{"/", http.StatusOK},
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/stats", http.StatusOK},
		{"/api/v1/runs", http.StatusOK},
		{"/api/v1/runs?organism=Homo%20sapiens", http.StatusOK},
		{"/api/v1/runs?metadata=x", http.StatusBadRequest},
		{"/api/v1/runs?limit=-1", http.StatusBadRequest},
		{"/api/v1/runs/SRR0000001", http.StatusOK},
		{"/api/v1/runs/SRR0000404", http.StatusNotFound},
		{"/api/v1/runs/not-an-accession", http.StatusBadRequest},
		{"/api/v1/metadata", http.StatusOK},
		{"/api/v1/metadata?ids=bogus", http.StatusBadRequest},
		{"/api/v1/failures", http.StatusOK},
		{"/api/v1/search?q=soil", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if rec := get(t, s, tt.target); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d: %s", tt.target, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestListRunsFilter(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	rec := get(t, s, "/api/v1/runs?organism=Mus%20musculus")
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Runs []database.RunSummary `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 1 || body.Runs[0].Accession != "SRR0000003" {
		t.Errorf("runs = %+v, want SRR0000003 only", body.Runs)
	}
}

func TestGetRunIncludesSequence(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	body := decode(t, get(t, s, "/api/v1/runs/SRR0000001"))
	meta, _ := body["metadata"].(map[string]interface{})
	if meta["env_medium"] != "stool" {
		t.Errorf("metadata = %v", meta)
	}
	seq, _ := body["sequence"].(map[string]interface{})
	if seq["layout"] != "SINGLE" {
		t.Errorf("sequence = %v", seq)
	}

	body = decode(t, get(t, s, "/api/v1/runs/SRR0000003"))
	if _, ok := body["sequence"]; ok {
		t.Error("SRR0000003 has no converted sequence")
	}
}

func TestMetadataTSV(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	rec := get(t, s, "/api/v1/metadata?ids=SRR0000003")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/tab-separated-values") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	tbl, err := metadata.ReadTSV(rec.Body)
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	if diff := cmp.Diff([]string{"SRR0000003"}, tbl.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestFailuresList(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	rec := get(t, s, "/api/v1/failures?format=list")
	want := "ID\terror_message\n" + testutil.FailedRun + "\t" + testutil.FailedMessage + "\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}

	body := decode(t, get(t, s, "/api/v1/failures?stage=sequences"))
	if body["total"] != float64(0) {
		t.Errorf("sequence failures = %v, want 0", body["total"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	var res search.Result
	rec := get(t, s, "/api/v1/search?organism=Mus%20musculus")
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Hits[0].ID != "SRR0000003" {
		t.Errorf("result = %+v, want SRR0000003 only", res)
	}
}

func TestSearchDisabled(t *testing.T) {
	s, cleanup := setupTestServer(t)
	defer cleanup()

	noIndex := NewServer(Config{}, s.db, nil, nil)
	if rec := get(t, noIndex, "/api/v1/search?q=x"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec := get(t, noIndex, "/metrics"); rec.Code == http.StatusOK {
		t.Error("/metrics served without a registry")
	}
}
