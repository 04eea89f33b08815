// Package database persists normalized run metadata, failed accessions and
// converted sequence bundles in SQLite so successive invocations build on each
// other's results.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/metadata"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Stages recorded alongside failures.
const (
	StageResolve   = "resolve"
	StageMetadata  = "metadata"
	StageSequences = "sequences"
)

// maxParams bounds the number of placeholders in one IN clause.
const maxParams = 500

const timeLayout = time.RFC3339Nano

// runColumns maps indexed run columns to the metadata columns they mirror.
var runColumns = []struct {
	column string
	field  string
}{
	{"experiment_accession", "experiment_id"},
	{"study_accession", "study_id"},
	{"bioproject", "bioproject_id"},
	{"sample_accession", "sample_id"},
	{"biosample", "biosample_id"},
	{"organism", "organism"},
	{"platform", "platform"},
	{"library_layout", "library_layout"},
	{"library_strategy", "library_strategy"},
}

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
	path string
}

// Path returns the database file the connection was opened on.
func (db *DB) Path() string { return db.path }

// Initialize creates and configures the database connection
func Initialize(path string) (*DB, error) {
	const op errors.Op = "database.Initialize"

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_sync=NORMAL")
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, "open database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			errors.IgnoreError(db.Close(), "closing after failed pragma")
			return nil, errors.E(op, errors.KindDatabase, fmt.Sprintf("set pragma %q", pragma), err)
		}
	}

	if err := createTables(db); err != nil {
		errors.IgnoreError(db.Close(), "closing after failed schema setup")
		return nil, errors.E(op, errors.KindDatabase, "create tables", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{DB: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_accession TEXT PRIMARY KEY,
		experiment_accession TEXT,
		study_accession TEXT,
		bioproject TEXT,
		sample_accession TEXT,
		biosample TEXT,
		organism TEXT,
		platform TEXT,
		library_layout TEXT,
		library_strategy TEXT,
		metadata JSON NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_study ON runs(study_accession);
	CREATE INDEX IF NOT EXISTS idx_runs_bioproject ON runs(bioproject);
	CREATE INDEX IF NOT EXISTS idx_runs_organism ON runs(organism);
	CREATE INDEX IF NOT EXISTS idx_runs_platform ON runs(platform);

	CREATE TABLE IF NOT EXISTS failures (
		accession TEXT NOT NULL,
		stage TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (accession, stage)
	);

	CREATE TABLE IF NOT EXISTS sequences (
		run_accession TEXT PRIMARY KEY,
		layout TEXT NOT NULL,
		bundle_dir TEXT NOT NULL,
		files JSON NOT NULL,
		converted_at TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveTable stores every row of t. Rows already in the database are merged
// with the incoming ones, so a cell that disagrees with what was stored
// earlier fails the whole call with a KindInconsistency error and nothing is
// written. It returns the number of rows written.
func (db *DB) SaveTable(ctx context.Context, t *metadata.Table) (int, error) {
	const op errors.Op = "database.SaveTable"

	if t == nil || t.Len() == 0 {
		return 0, nil
	}

	existing, err := db.LoadTable(ctx, t.IDs()...)
	if err != nil {
		return 0, errors.Wrap(op, err)
	}
	merged, err := metadata.Combine(existing, t)
	if err != nil {
		return 0, errors.Wrap(op, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.E(op, errors.KindDatabase, err)
	}
	defer func() { errors.IgnoreError(tx.Rollback(), "rollback after commit") }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(runColumns)+3), ", ")
	cols := []string{"run_accession"}
	for _, rc := range runColumns {
		cols = append(cols, rc.column)
	}
	cols = append(cols, "metadata", "updated_at")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO runs (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, errors.E(op, errors.KindDatabase, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	written := 0
	for _, row := range merged.Rows() {
		if !t.Has(row.ID) {
			continue
		}
		values := present(row.Values)
		doc, err := json.Marshal(values)
		if err != nil {
			return 0, errors.E(op, errors.KindDatabase, fmt.Sprintf("encode metadata for %s", row.ID), err)
		}
		args := []any{row.ID}
		for _, rc := range runColumns {
			args = append(args, nullable(values[rc.field]))
		}
		args = append(args, string(doc), now)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errors.E(op, errors.KindDatabase, fmt.Sprintf("store run %s", row.ID), err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.E(op, errors.KindDatabase, err)
	}
	return written, nil
}

// LoadTable returns the stored metadata for ids, or for every stored run when
// ids is empty. Unknown IDs are skipped.
func (db *DB) LoadTable(ctx context.Context, ids ...string) (*metadata.Table, error) {
	const op errors.Op = "database.LoadTable"

	var rows []metadata.Row
	scan := func(query string, args ...any) error {
		rs, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var id, doc string
			if err := rs.Scan(&id, &doc); err != nil {
				return err
			}
			values := make(map[string]string)
			if err := json.Unmarshal([]byte(doc), &values); err != nil {
				return fmt.Errorf("decode metadata for %s: %w", id, err)
			}
			rows = append(rows, metadata.Row{ID: id, Values: values})
		}
		return rs.Err()
	}

	if len(ids) == 0 {
		if err := scan("SELECT run_accession, metadata FROM runs ORDER BY run_accession"); err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
	} else {
		for _, part := range chunk(ids, maxParams) {
			query := "SELECT run_accession, metadata FROM runs WHERE run_accession IN (" + inClause(len(part)) + ")"
			if err := scan(query, toArgs(part)...); err != nil {
				return nil, errors.E(op, errors.KindDatabase, err)
			}
		}
	}

	t, err := metadata.NewTable(rows)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	return t, nil
}

// GetRun returns the stored metadata of one run, or ErrNotFound.
func (db *DB) GetRun(ctx context.Context, acc string) (map[string]string, error) {
	const op errors.Op = "database.GetRun"

	var doc string
	err := db.QueryRowContext(ctx, "SELECT metadata FROM runs WHERE run_accession = ?", acc).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.E(op, errors.KindValidation, fmt.Sprintf("run %s", acc), ErrNotFound)
	}
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(doc), &values); err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	return values, nil
}

// RunFilter selects stored runs. Filters holds exact-match conditions keyed
// by whitelisted column name; a zero Limit returns every match.
type RunFilter struct {
	Filters map[string]string
	OrderBy string
	Limit   int
	Offset  int
}

// RunSummary is the indexed view of a stored run.
type RunSummary struct {
	Accession string            `json:"run_accession"`
	Fields    map[string]string `json:"fields"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ListRuns returns stored runs matching f, ordered by f.OrderBy (run
// accession by default).
func (db *DB) ListRuns(ctx context.Context, f RunFilter) ([]RunSummary, error) {
	const op errors.Op = "database.ListRuns"

	cols := []string{"run_accession"}
	for _, rc := range runColumns {
		cols = append(cols, rc.column)
	}
	cols = append(cols, "updated_at")

	var (
		where []string
		args  []any
	)
	keys := make([]string, 0, len(f.Filters))
	for k := range f.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, err := SafeColumnName(k)
		if err != nil {
			return nil, errors.E(op, errors.KindValidation, err)
		}
		where = append(where, col+" = ?")
		args = append(args, f.Filters[k])
	}

	order := "run_accession"
	if f.OrderBy != "" {
		col, err := SafeColumnName(f.OrderBy)
		if err != nil {
			return nil, errors.E(op, errors.KindValidation, err)
		}
		order = col + ", run_accession"
	}

	query := "SELECT " + strings.Join(cols, ", ") + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rs, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	defer rs.Close()

	var out []RunSummary
	for rs.Next() {
		var (
			acc     string
			fields  = make([]sql.NullString, len(runColumns))
			updated string
		)
		dest := []any{&acc}
		for i := range fields {
			dest = append(dest, &fields[i])
		}
		dest = append(dest, &updated)
		if err := rs.Scan(dest...); err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
		s := RunSummary{Accession: acc, Fields: make(map[string]string)}
		for i, rc := range runColumns {
			if fields[i].Valid {
				s.Fields[rc.column] = fields[i].String
			}
		}
		s.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, s)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	return out, nil
}

// Failure is one stored failed accession.
type Failure struct {
	Accession  string    `json:"accession"`
	Stage      string    `json:"stage"`
	Message    string    `json:"error_message"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SaveFailures records every failure in t under stage, replacing earlier
// messages for the same accession and stage.
func (db *DB) SaveFailures(ctx context.Context, stage string, t *failures.Tracker) error {
	const op errors.Op = "database.SaveFailures"

	if t.Empty() {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.E(op, errors.KindDatabase, err)
	}
	defer func() { errors.IgnoreError(tx.Rollback(), "rollback after commit") }()

	now := time.Now().UTC().Format(timeLayout)
	for _, r := range t.Records() {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO failures (accession, stage, message, recorded_at) VALUES (?, ?, ?, ?)",
			r.ID, stage, r.Message, now); err != nil {
			return errors.E(op, errors.KindDatabase, fmt.Sprintf("store failure %s", r.ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.E(op, errors.KindDatabase, err)
	}
	return nil
}

// ClearFailures removes stored failures of ids for stage, typically after a
// retry succeeded.
func (db *DB) ClearFailures(ctx context.Context, stage string, ids []string) error {
	const op errors.Op = "database.ClearFailures"

	for _, part := range chunk(ids, maxParams) {
		args := append([]any{stage}, toArgs(part)...)
		if _, err := db.ExecContext(ctx,
			"DELETE FROM failures WHERE stage = ? AND accession IN ("+inClause(len(part))+")", args...); err != nil {
			return errors.E(op, errors.KindDatabase, err)
		}
	}
	return nil
}

// ListFailures returns stored failures for stage, or for every stage when
// stage is empty, ordered by accession.
func (db *DB) ListFailures(ctx context.Context, stage string) ([]Failure, error) {
	const op errors.Op = "database.ListFailures"

	query := "SELECT accession, stage, message, recorded_at FROM failures"
	var args []any
	if stage != "" {
		query += " WHERE stage = ?"
		args = append(args, stage)
	}
	query += " ORDER BY accession, stage"

	rs, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	defer rs.Close()

	var out []Failure
	for rs.Next() {
		var (
			f        Failure
			recorded string
		)
		if err := rs.Scan(&f.Accession, &f.Stage, &f.Message, &recorded); err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
		f.RecordedAt, _ = time.Parse(timeLayout, recorded)
		out = append(out, f)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	return out, nil
}

// FailureTracker loads the stored failures for stage into a tracker. When an
// accession failed in several stages the latest stage in name order wins.
func (db *DB) FailureTracker(ctx context.Context, stage string) (*failures.Tracker, error) {
	list, err := db.ListFailures(ctx, stage)
	if err != nil {
		return nil, err
	}
	t := failures.New()
	for _, f := range list {
		t.Record(f.Accession, f.Message)
	}
	return t, nil
}

// Sequence is a converted run and the bundle holding its files.
type Sequence struct {
	Accession   string    `json:"run_accession"`
	Layout      string    `json:"layout"`
	BundleDir   string    `json:"bundle_dir"`
	Files       []string  `json:"files"`
	ConvertedAt time.Time `json:"converted_at"`
}

// RecordSequence stores or replaces a converted run.
func (db *DB) RecordSequence(ctx context.Context, s Sequence) error {
	const op errors.Op = "database.RecordSequence"

	files, err := json.Marshal(s.Files)
	if err != nil {
		return errors.E(op, errors.KindDatabase, err)
	}
	at := s.ConvertedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sequences (run_accession, layout, bundle_dir, files, converted_at) VALUES (?, ?, ?, ?, ?)",
		s.Accession, s.Layout, s.BundleDir, string(files), at.UTC().Format(timeLayout))
	if err != nil {
		return errors.E(op, errors.KindDatabase, fmt.Sprintf("store sequence %s", s.Accession), err)
	}
	return nil
}

// GetSequence returns a converted run, or ErrNotFound.
func (db *DB) GetSequence(ctx context.Context, acc string) (*Sequence, error) {
	const op errors.Op = "database.GetSequence"

	var (
		s        = Sequence{Accession: acc}
		files    string
		recorded string
	)
	err := db.QueryRowContext(ctx,
		"SELECT layout, bundle_dir, files, converted_at FROM sequences WHERE run_accession = ?", acc).
		Scan(&s.Layout, &s.BundleDir, &files, &recorded)
	if err == sql.ErrNoRows {
		return nil, errors.E(op, errors.KindValidation, fmt.Sprintf("sequence %s", acc), ErrNotFound)
	}
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	if err := json.Unmarshal([]byte(files), &s.Files); err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	s.ConvertedAt, _ = time.Parse(timeLayout, recorded)
	return &s, nil
}

// Stats counts stored rows.
type Stats struct {
	Runs      int            `json:"runs"`
	Sequences int            `json:"sequences"`
	Failures  map[string]int `json:"failures"`
}

// Stats returns row counts per table and failures per stage.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	const op errors.Op = "database.Stats"

	s := &Stats{Failures: make(map[string]int)}
	for table, dst := range map[string]*int{"runs": &s.Runs, "sequences": &s.Sequences} {
		name, err := SafeTableName(table)
		if err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(dst); err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
	}

	rs, err := db.QueryContext(ctx, "SELECT stage, COUNT(*) FROM failures GROUP BY stage")
	if err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	defer rs.Close()
	for rs.Next() {
		var (
			stage string
			n     int
		)
		if err := rs.Scan(&stage, &n); err != nil {
			return nil, errors.E(op, errors.KindDatabase, err)
		}
		s.Failures[stage] = n
	}
	if err := rs.Err(); err != nil {
		return nil, errors.E(op, errors.KindDatabase, err)
	}
	return s, nil
}

func present(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v == "" || v == metadata.Missing {
			continue
		}
		out[k] = v
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func inClause(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
