package metadata

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nishad/srafetch/internal/errors"
)

func mustTable(t *testing.T, rows ...Row) *Table {
	t.Helper()
	table, err := combineRows(rows)
	if err != nil {
		t.Fatalf("combineRows: %v", err)
	}
	return table
}

func row(id string, kv ...string) Row {
	r := Row{ID: id, Values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Values[kv[i]] = kv[i+1]
	}
	return r
}

func tableTSV(t *testing.T, table *Table) string {
	t.Helper()
	var buf bytes.Buffer
	if err := table.WriteTSV(&buf); err != nil {
		t.Fatalf("WriteTSV: %v", err)
	}
	return buf.String()
}

func TestMergeIdempotent(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x", "depth", "1"), row("R2", "platform", "ILLUMINA"))
	merged, err := Merge(a, a)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff(tableTSV(t, a), tableTSV(t, merged)); diff != "" {
		t.Errorf("Merge(A, A) != A (-want +got):\n%s", diff)
	}
}

func TestMergeAssociative(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x"))
	b := mustTable(t, row("R2", "organism", "y"), row("R1", "organism", "x"))
	c := mustTable(t, row("R3", "ph", "7"), row("R2", "platform", "ILLUMINA"))

	ab, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge(a, b): %v", err)
	}
	left, err := Merge(ab, c)
	if err != nil {
		t.Fatalf("Merge(ab, c): %v", err)
	}
	bc, err := Merge(b, c)
	if err != nil {
		t.Fatalf("Merge(b, c): %v", err)
	}
	right, err := Merge(a, bc)
	if err != nil {
		t.Fatalf("Merge(a, bc): %v", err)
	}
	if diff := cmp.Diff(tableTSV(t, left), tableTSV(t, right)); diff != "" {
		t.Errorf("merge is not associative (-left +right):\n%s", diff)
	}
}

func TestMergeIdenticalDuplicate(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x"))
	b := mustTable(t, row("R1", "organism", "x"))
	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Len() != 1 {
		t.Errorf("Len = %d, want 1", merged.Len())
	}
}

func TestMergeConflictNamesRun(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x"))
	b := mustTable(t, row("R1", "organism", "y"))

	_, err := Merge(a, b)
	if !errors.IsKind(err, errors.KindInconsistency) {
		t.Fatalf("error = %v, want inconsistency kind", err)
	}
	var ie *InconsistencyError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InconsistencyError", err)
	}
	if ie.ID != "R1" || ie.Column != "organism" {
		t.Errorf("InconsistencyError = %+v", ie)
	}
	if !strings.Contains(err.Error(), "R1") {
		t.Errorf("message %q does not name R1", err.Error())
	}
}

func TestMergeMissingCellsMatch(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x", "depth", Missing))
	b := mustTable(t, row("R1", "organism", "x"))
	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := merged.Get("R1", "organism"); got != "x" {
		t.Errorf("organism = %q, want x", got)
	}
}

func TestMergeRejectsDifferingDuplicates(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Row
		column string
	}{
		{"extra column", row("R1", "organism", "human"), row("R1", "organism", "human", "host", "mouse"), "host"},
		{"column only on the left", row("R1", "depth", "5", "organism", "x"), row("R1", "organism", "x"), "depth"},
		{"first differing column", row("R1", "a", "1", "b", "2"), row("R1", "a", "9", "b", "8"), "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := Merge(mustTable(t, tt.a), mustTable(t, tt.b))
			if merged != nil {
				t.Errorf("Merge returned a table alongside the conflict")
			}
			var ie *InconsistencyError
			if !errors.As(err, &ie) {
				t.Fatalf("error = %v, want InconsistencyError", err)
			}
			if ie.ID != "R1" || ie.Column != tt.column {
				t.Errorf("InconsistencyError = %+v, want R1/%s", ie, tt.column)
			}
		})
	}
}

func TestCombineFillsMissingCells(t *testing.T) {
	a := mustTable(t, row("R1", "organism", "x", "depth", Missing))
	b := mustTable(t, row("R1", "depth", "5"))
	combined, err := Combine(a, b)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if got := combined.Get("R1", "depth"); got != "5" {
		t.Errorf("depth = %q, want 5", got)
	}

	if _, err := Combine(a, mustTable(t, row("R1", "organism", "y"))); !errors.IsKind(err, errors.KindInconsistency) {
		t.Errorf("error = %v, want inconsistency kind", err)
	}
}

func TestMergeEmpty(t *testing.T) {
	merged, err := Merge()
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Len() != 0 || len(merged.Columns()) != 0 {
		t.Errorf("Merge() = %d rows, %d columns", merged.Len(), len(merged.Columns()))
	}
}

func TestColumnOrder(t *testing.T) {
	table := mustTable(t, row("R1", "zeta", "1", "alpha", "2", "organism", "o", "library_layout", "SINGLE"))
	want := []string{"library_layout", "organism", "alpha", "zeta"}
	if diff := cmp.Diff(want, table.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}

func TestTSVRoundTrip(t *testing.T) {
	table := mustTable(t,
		row("SRR2", "organism", "mouse", "note", "line one\nline two"),
		row("SRR1", "organism", "human", "depth", "10"),
	)
	text := tableTSV(t, table)

	if !strings.HasPrefix(text, "ID\torganism\tdepth\tnote\n") {
		t.Errorf("header = %q", strings.SplitN(text, "\n", 2)[0])
	}
	if !strings.Contains(text, "SRR1\thuman\t10\tNA\n") {
		t.Errorf("missing cell not written as NA:\n%s", text)
	}

	back, err := ReadTSV(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	if diff := cmp.Diff(text, tableTSV(t, back)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got := back.Get("SRR2", "note"); got != "line one line two" {
		t.Errorf("note = %q", got)
	}
}

func TestReadTSVRejectsBadHeader(t *testing.T) {
	_, err := ReadTSV(strings.NewReader("run\torganism\nSRR1\tx\n"))
	if !errors.IsKind(err, errors.KindParse) {
		t.Errorf("error = %v, want parse kind", err)
	}
}
