package metadata

import (
	"fmt"
	"sort"

	"github.com/nishad/srafetch/internal/errors"
)

// Row is the flattened metadata of one run. Values holds only present cells.
type Row struct {
	ID     string
	Values map[string]string
}

// Table is a set of rows keyed by run accession, sorted by ID, with the union
// of their columns. Every row reports a value for every column; absent cells
// read as Missing.
type Table struct {
	columns []string
	rows    []Row
	index   map[string]int
}

// InconsistencyError reports a run that appears with different content in
// tables being merged.
type InconsistencyError struct {
	ID     string
	Column string
	Left   string
	Right  string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("conflicting metadata for run %s: column %q is %q in one input and %q in another",
		e.ID, e.Column, e.Left, e.Right)
}

// Columns returns the column names, canonical columns first in fixed order,
// then the rest alphabetically. The ID column is not included.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// IDs returns the run accessions in table order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.ID
	}
	return out
}

// Has reports whether the table holds a row for id.
func (t *Table) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Get returns the cell for id and column, or Missing.
func (t *Table) Get(id, column string) string {
	i, ok := t.index[id]
	if !ok {
		return Missing
	}
	if v, ok := t.rows[i].Values[column]; ok && v != "" {
		return v
	}
	return Missing
}

// Record returns every column of row id, absent cells filled with Missing.
func (t *Table) Record(id string) (map[string]string, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		out[c] = Missing
		if v, ok := t.rows[i].Values[c]; ok && v != "" {
			out[c] = v
		}
	}
	return out, true
}

// Rows returns copies of the rows in table order with every column filled.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		values, _ := t.Record(r.ID)
		out[i] = Row{ID: r.ID, Values: values}
	}
	return out
}

// Merge unions tables by run accession. A run present in several inputs must
// carry identical filled cells in each; any difference, including a column
// filled on one side only, returns an *InconsistencyError naming the run and
// the first differing column. Merge is idempotent and associative, and
// Merge() returns an empty table.
func Merge(tables ...*Table) (*Table, error) {
	const op errors.Op = "metadata.Merge"

	var rows []Row
	first := make(map[string]map[string]string)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, r := range t.rows {
			prev, ok := first[r.ID]
			if !ok {
				first[r.ID] = r.Values
				rows = append(rows, r)
				continue
			}
			if ie := compareRows(r.ID, prev, r.Values); ie != nil {
				return nil, errors.E(op, errors.KindInconsistency, ie)
			}
		}
	}
	return combineRows(rows)
}

// compareRows returns the first column, in name order, whose filled value
// differs between left and right.
func compareRows(id string, left, right map[string]string) *InconsistencyError {
	cols := make(map[string]struct{}, len(left)+len(right))
	for c, v := range left {
		if !isMissing(v) {
			cols[c] = struct{}{}
		}
	}
	for c, v := range right {
		if !isMissing(v) {
			cols[c] = struct{}{}
		}
	}
	names := make([]string, 0, len(cols))
	for c := range cols {
		names = append(names, c)
	}
	sort.Strings(names)

	for _, c := range names {
		l, r := cellValue(left, c), cellValue(right, c)
		if l != r {
			return &InconsistencyError{ID: id, Column: c, Left: l, Right: r}
		}
	}
	return nil
}

func cellValue(values map[string]string, col string) string {
	if v := values[col]; !isMissing(v) {
		return v
	}
	return Missing
}

// Combine unions tables by run accession, filling a run's missing cells from
// whichever input has them. Only filled cells that disagree are an error. It
// suits accumulating partial records of one run, as the store does; use Merge
// for independent result tables.
func Combine(tables ...*Table) (*Table, error) {
	var rows []Row
	for _, t := range tables {
		if t == nil {
			continue
		}
		rows = append(rows, t.rows...)
	}
	return combineRows(rows)
}

// NewTable builds a table from rows. Rows sharing an ID are combined as in
// Combine.
func NewTable(rows []Row) (*Table, error) {
	return combineRows(rows)
}

func combineRows(rows []Row) (*Table, error) {
	const op errors.Op = "metadata.Combine"

	byID := make(map[string]map[string]string, len(rows))
	for _, r := range rows {
		cur, ok := byID[r.ID]
		if !ok {
			cur = make(map[string]string, len(r.Values))
			byID[r.ID] = cur
		}
		for col, v := range r.Values {
			if isMissing(v) {
				continue
			}
			if prev, ok := cur[col]; ok && prev != v {
				return nil, errors.E(op, errors.KindInconsistency,
					&InconsistencyError{ID: r.ID, Column: col, Left: prev, Right: v})
			}
			cur[col] = v
		}
	}

	t := &Table{index: make(map[string]int, len(byID))}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	columnSet := make(map[string]struct{})
	for i, id := range ids {
		t.rows = append(t.rows, Row{ID: id, Values: byID[id]})
		t.index[id] = i
		for col := range byID[id] {
			columnSet[col] = struct{}{}
		}
	}
	t.columns = orderColumns(columnSet)
	return t, nil
}

// orderColumns puts canonical columns first in their fixed order, then the
// others alphabetically.
func orderColumns(set map[string]struct{}) []string {
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		ci, iCanon := canonicalIndex[cols[i]]
		cj, jCanon := canonicalIndex[cols[j]]
		switch {
		case iCanon && jCanon:
			return ci < cj
		case iCanon != jCanon:
			return iCanon
		default:
			return cols[i] < cols[j]
		}
	})
	return cols
}

func isMissing(v string) bool {
	return v == "" || v == Missing
}
