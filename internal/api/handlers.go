package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/search"
)

// paging reads limit and offset, defaulting limit to def.
func paging(r *http.Request, def int) (limit, offset int, err error) {
	limit = def
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.Errorf(errors.Op("api.paging"), errors.KindValidation, "invalid limit %q", v)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.Errorf(errors.Op("api.paging"), errors.KindValidation, "invalid offset %q", v)
		}
	}
	return limit, offset, nil
}

// filters collects every query parameter not in reserved.
func filters(r *http.Request, reserved ...string) map[string]string {
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if skip[k] || len(v) == 0 || v[0] == "" {
			continue
		}
		out[k] = v[0]
	}
	return out
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.IsKind(err, errors.KindValidation):
		return http.StatusBadRequest
	case errors.IsKind(err, errors.KindInconsistency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if err := s.db.PingContext(r.Context()); err != nil {
		health["status"] = "unhealthy"
		health["store"] = err.Error()
	} else {
		health["store"] = "healthy"
	}
	if s.index != nil {
		if _, err := s.index.DocCount(); err != nil {
			health["status"] = "unhealthy"
			health["search"] = err.Error()
		} else {
			health["search"] = "healthy"
		}
	}

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := map[string]interface{}{
		"runs":      stats.Runs,
		"sequences": stats.Sequences,
		"failures":  stats.Failures,
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			out["indexed"] = n
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r, s.limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	runs, err := s.db.ListRuns(r.Context(), database.RunFilter{
		Filters: filters(r, "limit", "offset", "order_by"),
		OrderBy: r.URL.Query().Get("order_by"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []database.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	acc := mux.Vars(r)["accession"]
	if _, err := accession.Parse(acc); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	values, err := s.db.GetRun(r.Context(), acc)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := map[string]interface{}{
		"run_accession": acc,
		"metadata":      values,
	}
	seq, err := s.db.GetSequence(r.Context(), acc)
	switch {
	case err == nil:
		out["sequence"] = seq
	case !errors.Is(err, database.ErrNotFound):
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleMetadataTSV streams stored metadata as a TSV table. ids takes a
// comma-separated list; without it every stored run is returned.
func (s *Server) handleMetadataTSV(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if _, err := accession.ParseAll(ids); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.db.LoadTable(r.Context(), ids...)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	if err := t.WriteTSV(w); err != nil {
		s.logger.Warn("writing TSV response", "error", err)
	}
}

// handleFailures lists stored failures. format=list returns the failed-ID
// list that the CLI accepts back as input.
func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	list, err := s.db.ListFailures(r.Context(), r.URL.Query().Get("stage"))
	if err != nil {
		s.fail(w, err)
		return
	}

	if r.URL.Query().Get("format") == "list" {
		seen := make(map[string]bool, len(list))
		var entries []accession.Entry
		for _, f := range list {
			if seen[f.Accession] {
				continue
			}
			seen[f.Accession] = true
			entries = append(entries, accession.Entry{ID: f.Accession, Message: f.Message})
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := accession.WriteList(w, entries, true); err != nil {
			s.logger.Warn("writing failure list", "error", err)
		}
		return
	}

	if list == nil {
		list = []database.Failure{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": list,
		"total":    len(list),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search index is disabled")
		return
	}
	limit, offset, err := paging(r, s.limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	fuzzy, _ := strconv.ParseBool(r.URL.Query().Get("fuzzy"))

	res, err := s.index.Search(search.Request{
		Query:   r.URL.Query().Get("q"),
		Filters: filters(r, "q", "fuzzy", "limit", "offset"),
		Fuzzy:   fuzzy,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.Hits == nil {
		res.Hits = []search.Hit{}
	}
	s.writeJSON(w, http.StatusOK, res)
}
