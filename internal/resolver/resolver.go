// Package resolver expands mixed-kind accessions into the run accessions they
// imply. Malformed input is rejected up front; remote failures are retried and
// then recorded per accession so the rest of the request still completes.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/retry"
)

// maxPages guards against a remote that never signals exhaustion.
const maxPages = 10000

// Config configures a Resolver.
type Config struct {
	Lookup Lookup
	NJobs  int
	Retry  retry.Policy
	Logger *slog.Logger
}

// Resolver expands accessions through a Lookup.
type Resolver struct {
	lookup Lookup
	nJobs  int
	policy retry.Policy
	logger *slog.Logger
}

// Result is the outcome of a resolution. Runs is sorted and de-duplicated.
type Result struct {
	Runs   []accession.ID
	Failed *failures.Tracker
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	if cfg.NJobs < 1 {
		cfg.NJobs = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		lookup: cfg.Lookup,
		nJobs:  cfg.NJobs,
		policy: cfg.Retry,
		logger: cfg.Logger,
	}
}

type expansion struct {
	source string
	runs   []string
	err    error
}

// Resolve validates every value, then expands the non-run accessions. A
// malformed value fails the whole call before any lookup is made.
func (r *Resolver) Resolve(ctx context.Context, values []string) (*Result, error) {
	const op errors.Op = "resolver.Resolve"

	ids, err := accession.ParseAll(values)
	if err != nil {
		return nil, err
	}

	result := &Result{Failed: failures.New()}
	var pending []accession.ID
	for _, id := range ids {
		if id.IsRun() {
			result.Runs = append(result.Runs, id)
		} else {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		result.Runs = accession.Unique(result.Runs)
		return result, nil
	}
	if r.lookup == nil {
		return nil, errors.E(op, errors.KindConfig, "no lookup configured for non-run accessions")
	}

	p := pool.NewWithResults[expansion]().WithMaxGoroutines(r.nJobs)
	for _, id := range pending {
		id := id // per-iteration copy for the concurrent closure (go < 1.22 loop semantics)
		p.Go(func() expansion {
			runs, err := r.expand(ctx, QueryFor(id))
			return expansion{source: id.String(), runs: runs, err: err}
		})
	}

	for _, exp := range p.Wait() {
		if exp.err != nil {
			r.logger.Warn("could not expand accession", "id", exp.source, "error", exp.err)
			result.Failed.RecordError(exp.source, exp.err)
			continue
		}
		r.logger.Debug("expanded accession", "id", exp.source, "runs", len(exp.runs))
		for _, run := range exp.runs {
			id, err := accession.Parse(run)
			if err != nil {
				r.logger.Warn("lookup returned a non-run accession", "source", exp.source, "value", run)
				continue
			}
			result.Runs = append(result.Runs, id)
		}
	}

	result.Runs = accession.Unique(result.Runs)
	return result, nil
}

// ResolveQuery runs a free-text BioSample query and returns the matching run
// accessions. Unlike Resolve, a failed query is returned as an error since
// there is no accession to record it against.
func (r *Resolver) ResolveQuery(ctx context.Context, text string) ([]accession.ID, error) {
	const op errors.Op = "resolver.ResolveQuery"

	if r.lookup == nil {
		return nil, errors.E(op, errors.KindConfig, "no lookup configured")
	}
	runs, err := r.expand(ctx, BioSampleQuery(text))
	if err != nil {
		return nil, errors.Wrap(op, err)
	}

	ids := make([]accession.ID, 0, len(runs))
	for _, run := range runs {
		id, err := accession.Parse(run)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return accession.Unique(ids), nil
}

// expand pages through q until the lookup reports exhaustion. Each page is
// retried on its own; an exhausted page discards everything gathered so far.
func (r *Resolver) expand(ctx context.Context, q Query) ([]string, error) {
	var (
		runs   []string
		offset int
	)
	for pages := 0; ; pages++ {
		if pages >= maxPages {
			return nil, fmt.Errorf("lookup for %s did not finish after %d pages", q.Term, maxPages)
		}

		var page Page
		err := retry.Do(ctx, r.policy, func(attempt int) error {
			if attempt > 0 {
				r.logger.Debug("retrying lookup", "term", q.Term, "offset", offset, "attempt", attempt+1)
			}
			var err error
			page, err = r.lookup.RunPage(ctx, q, offset)
			return err
		})
		if err != nil {
			return nil, err
		}

		runs = append(runs, page.RunIDs...)
		if page.Done {
			break
		}
		if page.Next <= offset {
			return nil, fmt.Errorf("lookup for %s did not advance past offset %d", q.Term, offset)
		}
		offset = page.Next
	}
	sort.Strings(runs)
	return runs, nil
}
