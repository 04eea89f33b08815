// Package sequences converts runs into gzip-compressed FASTQ bundles. Each run
// moves through pending, downloading and a terminal state on its own worker;
// failed runs are retried until the policy is exhausted and are then reported
// as data, not as an error of the whole batch.
package sequences

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/nishad/srafetch/internal/downloader"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/retry"
)

// DefaultExpansionFactor scales an archive size hint into the scratch space a
// conversion needs.
const DefaultExpansionFactor = 10.0

// Bundle directory names under the output directory.
const (
	SingleDir = "single"
	PairedDir = "paired"
)

// Tool converts one run into FASTQ files in req.OutputDir.
type Tool interface {
	Dump(ctx context.Context, req downloader.Request) error
}

// Config configures a Fetcher.
type Config struct {
	Tool      Tool
	OutputDir string
	TempDir   string
	NJobs     int
	Threads   int
	Retry     retry.Policy

	// Restricted mode passes KeyFile to the tool; the key must be readable.
	Restricted bool
	KeyFile    string

	// The space guard requires max(MinFreeSpace, hint*ExpansionFactor) bytes
	// free in TempDir before a run starts. SizeHints is keyed by accession.
	MinFreeSpace    uint64
	ExpansionFactor float64
	SizeHints       map[string]uint64
	FreeSpace       func(path string) (uint64, error)

	Logger *slog.Logger
}

// Result is the outcome of a batch.
type Result struct {
	Single *Bundle
	Paired *Bundle
	Runs   []RunResult // sorted by accession
	Failed *failures.Tracker
}

// SpaceError is returned when the scratch filesystem cannot hold a run.
type SpaceError struct {
	Accession string
	Dir       string
	Available uint64
	Required  uint64
}

func (e *SpaceError) Error() string {
	return fmt.Sprintf("not enough space in %s for %s: %s available, %s required",
		e.Dir, e.Accession, humanize.IBytes(e.Available), humanize.IBytes(e.Required))
}

// Fetcher runs conversions on a bounded worker pool.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.NJobs < 1 {
		cfg.NJobs = 1
	}
	if cfg.ExpansionFactor <= 0 {
		cfg.ExpansionFactor = DefaultExpansionFactor
	}
	if cfg.FreeSpace == nil {
		cfg.FreeSpace = freeSpace
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Validate catches misconfiguration that would fail every run the same way:
// a missing tool, or restricted mode without a readable key file. Callers
// that do other work before converting should check it first.
func (c Config) Validate() error {
	const op errors.Op = "sequences.Validate"

	if c.Tool == nil {
		return errors.E(op, errors.KindConfig, "no conversion tool configured")
	}
	if c.Restricted {
		if c.KeyFile == "" {
			return errors.E(op, errors.KindConfig, "restricted access requires a key file")
		}
		fh, err := os.Open(c.KeyFile)
		if err != nil {
			return errors.E(op, errors.KindConfig, err, "restricted access key file is not readable")
		}
		fh.Close()
	}
	return nil
}

func (f *Fetcher) validate() error {
	if err := f.cfg.Validate(); err != nil {
		return err
	}
	if f.cfg.OutputDir == "" {
		return errors.E(errors.Op("sequences.validate"), errors.KindConfig, "no output directory configured")
	}
	return nil
}

// Fetch converts every run and assembles the single and paired bundles. Both
// bundles are always produced; one no run landed in holds a placeholder entry.
// Errors are returned only for misconfiguration and bundle I/O.
func (f *Fetcher) Fetch(ctx context.Context, runIDs []string) (*Result, error) {
	const op errors.Op = "sequences.Fetch"

	if err := f.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.cfg.TempDir, 0755); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	single, err := newBundle(filepath.Join(f.cfg.OutputDir, SingleDir), false)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	paired, err := newBundle(filepath.Join(f.cfg.OutputDir, PairedDir), true)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}

	ids := uniqueSorted(runIDs)
	f.logger.Info("fetching sequences", "runs", len(ids), "jobs", f.cfg.NJobs, "restricted", f.cfg.Restricted)

	p := pool.NewWithResults[RunResult]().WithMaxGoroutines(f.cfg.NJobs)
	for _, id := range ids {
		id := id // per-iteration copy for the concurrent closure (go < 1.22 loop semantics)
		p.Go(func() RunResult {
			return f.runOne(ctx, id, single.Dir, paired.Dir)
		})
	}
	runs := p.Wait()
	sort.Slice(runs, func(i, j int) bool { return runs[i].Accession < runs[j].Accession })

	res := &Result{Single: single, Paired: paired, Runs: runs, Failed: failures.New()}
	for _, r := range runs {
		switch r.State {
		case StateSingle:
			single.add(r.Accession, r.Files)
		case StatePaired:
			paired.add(r.Accession, r.Files)
		default:
			res.Failed.RecordError(r.Accession, r.Err)
		}
	}

	for _, b := range []*Bundle{single, paired} {
		if len(b.Entries) == 0 {
			if err := b.addPlaceholder(); err != nil {
				return nil, errors.E(op, errors.KindIO, err)
			}
		}
		if err := b.finish(); err != nil {
			return nil, err
		}
	}

	f.logger.Info("sequences fetched",
		"single", len(single.SampleIDs()), "paired", len(paired.SampleIDs()), "failed", res.Failed.Len())
	return res, nil
}

// runOne drives one run through its state machine. Attempts are sequential.
func (f *Fetcher) runOne(ctx context.Context, acc, singleDir, pairedDir string) RunResult {
	m := newMachine()
	res := RunResult{Accession: acc}

	err := retry.Do(ctx, f.cfg.Retry, func(attempt int) error {
		if attempt > 0 {
			m.to(StatePending)
			f.logger.Info("retrying run", "run", acc, "attempt", attempt+1)
		}
		res.Attempts++

		if err := f.checkSpace(acc); err != nil {
			m.to(StateFailed)
			return retry.Permanent(err)
		}

		m.to(StateDownloading)
		layout, files, err := f.convert(ctx, acc, singleDir, pairedDir)
		if err != nil {
			m.to(StateFailed)
			f.logger.Debug("run attempt failed", "run", acc, "attempt", attempt+1, "error", err)
			return err
		}
		m.to(layout)
		res.Files = files
		return nil
	})

	res.State = m.state
	if err != nil {
		res.State = StateFailed
		res.Err = err
		f.logger.Warn("run failed", "run", acc, "attempts", res.Attempts, "error", err)
	}
	return res
}

// checkSpace fails when the scratch filesystem is short of the run's estimate.
// A failed probe is logged and the run proceeds.
func (f *Fetcher) checkSpace(acc string) error {
	const op errors.Op = "sequences.checkSpace"

	required := f.cfg.MinFreeSpace
	if hint, ok := f.cfg.SizeHints[acc]; ok {
		if need := uint64(float64(hint) * f.cfg.ExpansionFactor); need > required {
			required = need
		}
	}
	if required == 0 {
		return nil
	}

	available, err := f.cfg.FreeSpace(f.cfg.TempDir)
	if err != nil {
		f.logger.Debug("free space probe failed", "dir", f.cfg.TempDir, "error", err)
		return nil
	}
	if available < required {
		return errors.E(op, errors.KindResource, &SpaceError{
			Accession: acc,
			Dir:       f.cfg.TempDir,
			Available: available,
			Required:  required,
		})
	}
	return nil
}

// convert runs the tool in a fresh job directory and moves its output into
// the matching bundle.
func (f *Fetcher) convert(ctx context.Context, acc, singleDir, pairedDir string) (State, []string, error) {
	jobDir := filepath.Join(f.cfg.TempDir, "srafetch-"+uuid.NewString())
	defer func() {
		errors.IgnoreError(os.RemoveAll(jobDir), "removing job directory")
	}()

	outDir := filepath.Join(jobDir, "out")
	tmpDir := filepath.Join(jobDir, "tmp")
	for _, d := range []string{outDir, tmpDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return StateFailed, nil, err
		}
	}

	req := downloader.Request{
		Accession: acc,
		OutputDir: outDir,
		TempDir:   tmpDir,
		Threads:   f.cfg.Threads,
	}
	if f.cfg.Restricted {
		req.KeyFile = f.cfg.KeyFile
	}
	if err := f.cfg.Tool.Dump(ctx, req); err != nil {
		return StateFailed, nil, err
	}

	layout, sources := classify(outDir, acc)
	if layout == StateFailed {
		return StateFailed, nil, fmt.Errorf("no FASTQ output was produced for %s", acc)
	}

	dest := singleDir
	if layout == StatePaired {
		dest = pairedDir
	}
	files := make([]string, 0, len(sources))
	for i, src := range sources {
		name := casavaName(acc, i+1)
		if err := compressInto(src, filepath.Join(dest, name)); err != nil {
			for _, done := range files {
				errors.IgnoreError(os.Remove(filepath.Join(dest, done)), "removing partial bundle file")
			}
			return StateFailed, nil, err
		}
		files = append(files, name)
	}
	return layout, files, nil
}

// classify inspects the tool's output: <acc>_1 and <acc>_2 make a paired
// run, <acc>.fastq (or a lone <acc>_1) a single one, nothing a failure.
func classify(dir, acc string) (State, []string) {
	exists := func(name string) (string, bool) {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		return p, err == nil && !info.IsDir()
	}

	r1, has1 := exists(acc + "_1.fastq")
	r2, has2 := exists(acc + "_2.fastq")
	if has1 && has2 {
		return StatePaired, []string{r1, r2}
	}
	if s, ok := exists(acc + ".fastq"); ok {
		return StateSingle, []string{s}
	}
	if has1 {
		return StateSingle, []string{r1}
	}
	return StateFailed, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
