// Package failures accumulates per-accession failures from every stage and
// renders them as a re-submittable failed-ID list.
package failures

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nishad/srafetch/internal/accession"
)

// Record is one failed accession and the most recent cause.
type Record struct {
	ID      string `json:"id"`
	Message string `json:"error_message"`
}

// Tracker is safe for concurrent use. The zero value is ready to use.
type Tracker struct {
	mu      sync.Mutex
	records map[string]string
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{records: make(map[string]string)}
}

// FromEntries builds a tracker from a failed-ID list.
func FromEntries(entries []accession.Entry) *Tracker {
	t := New()
	for _, e := range entries {
		t.Record(e.ID, e.Message)
	}
	return t
}

// Record stores msg for id, replacing any earlier message.
func (t *Tracker) Record(id, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.records == nil {
		t.records = make(map[string]string)
	}
	t.records[id] = msg
}

// RecordError is Record with err's message.
func (t *Tracker) RecordError(id string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.Record(id, msg)
}

// Forget drops id, used when a later attempt succeeds.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// Merge copies every record of other into t; other's messages win on collision.
func (t *Tracker) Merge(other *Tracker) {
	if other == nil || other == t {
		return
	}
	for _, r := range other.Records() {
		t.Record(r.ID, r.Message)
	}
}

// Combine merges trackers left to right into a new tracker.
func Combine(trackers ...*Tracker) *Tracker {
	out := New()
	for _, tr := range trackers {
		out.Merge(tr)
	}
	return out
}

// Message returns the recorded message for id.
func (t *Tracker) Message(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg, ok := t.records[id]
	return msg, ok
}

// Len returns the number of failed IDs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Empty reports whether nothing failed.
func (t *Tracker) Empty() bool { return t.Len() == 0 }

// Records returns a snapshot sorted by ID.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for id, msg := range t.records {
		out = append(out, Record{ID: id, Message: msg})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the failed IDs in sorted order.
func (t *Tracker) IDs() []string {
	recs := t.Records()
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// Entries converts the records to the shared ID-list shape.
func (t *Tracker) Entries() []accession.Entry {
	recs := t.Records()
	entries := make([]accession.Entry, len(recs))
	for i, r := range recs {
		entries[i] = accession.Entry{ID: r.ID, Message: r.Message}
	}
	return entries
}

// WriteTo writes the failed-ID artifact. An empty tracker still produces a
// header row so the artifact is always well formed.
func (t *Tracker) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := accession.WriteList(cw, t.Entries(), true)
	return cw.n, err
}

// Report writes a human-readable summary.
func (t *Tracker) Report(w io.Writer) error {
	recs := t.Records()
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No failures.")
		return err
	}
	if _, err := fmt.Fprintf(w, "%d accession(s) failed:\n", len(recs)); err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", r.ID, r.Message); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom loads a failed-ID artifact.
func ReadFrom(r io.Reader) (*Tracker, error) {
	entries, err := accession.ReadList(r)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
