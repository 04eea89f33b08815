package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/retry"
)

// DefaultBatchSize is the number of runs requested per efetch call.
const DefaultBatchSize = 150

// Source returns the EXPERIMENT_PACKAGE_SET document for a batch of runs.
type Source interface {
	FetchPackages(ctx context.Context, runIDs []string) ([]byte, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Source    Source
	BatchSize int
	NJobs     int
	Retry     retry.Policy
	Logger    *slog.Logger
}

// Fetcher retrieves run records in sub-batches on a bounded worker pool.
type Fetcher struct {
	source    Source
	batchSize int
	nJobs     int
	policy    retry.Policy
	logger    *slog.Logger
}

// FetchResult holds the records fetched and the runs that could not be.
type FetchResult struct {
	Records []*RunRecord // sorted by accession
	Failed  *failures.Tracker
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.NJobs < 1 {
		cfg.NJobs = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		source:    cfg.Source,
		batchSize: cfg.BatchSize,
		nJobs:     cfg.NJobs,
		policy:    cfg.Retry,
		logger:    cfg.Logger,
	}
}

type batchResult struct {
	ids     []string
	records map[string]*RunRecord
	err     error
}

// Fetch retrieves records for runIDs. A sub-batch that still fails after the
// retry policy is exhausted marks every run in it as failed with the last
// error; requested runs missing from an otherwise good response fail on their
// own. Fetch itself only errors on misconfiguration.
func (f *Fetcher) Fetch(ctx context.Context, runIDs []string) (*FetchResult, error) {
	const op errors.Op = "metadata.Fetch"

	if f.source == nil {
		return nil, errors.E(op, errors.KindConfig, "no metadata source configured")
	}

	ids := dedupe(runIDs)
	batches := chunk(ids, f.batchSize)
	f.logger.Info("fetching metadata", "runs", len(ids), "batches", len(batches), "jobs", f.nJobs)

	p := pool.NewWithResults[batchResult]().WithMaxGoroutines(f.nJobs)
	for _, batch := range batches {
		batch := batch // per-iteration copy for the concurrent closure (go < 1.22 loop semantics)
		p.Go(func() batchResult {
			records, err := f.fetchBatch(ctx, batch)
			return batchResult{ids: batch, records: records, err: err}
		})
	}

	result := &FetchResult{Failed: failures.New()}
	for _, br := range p.Wait() {
		if br.err != nil {
			f.logger.Warn("metadata batch failed", "runs", len(br.ids), "error", br.err)
			for _, id := range br.ids {
				result.Failed.RecordError(id, br.err)
			}
			continue
		}
		for _, id := range br.ids {
			rec, ok := br.records[id]
			if !ok {
				result.Failed.Record(id, fmt.Sprintf("no metadata returned for %s", id))
				continue
			}
			result.Records = append(result.Records, rec)
		}
	}

	sort.Slice(result.Records, func(i, j int) bool {
		return result.Records[i].Accession < result.Records[j].Accession
	})
	f.logger.Info("metadata fetched", "records", len(result.Records), "failed", result.Failed.Len())
	return result, nil
}

// FetchTable is Fetch followed by Normalize.
func (f *Fetcher) FetchTable(ctx context.Context, runIDs []string) (*Table, *failures.Tracker, error) {
	res, err := f.Fetch(ctx, runIDs)
	if err != nil {
		return nil, nil, err
	}
	table, err := Normalize(res.Records)
	if err != nil {
		return nil, nil, err
	}
	return table, res.Failed, nil
}

func (f *Fetcher) fetchBatch(ctx context.Context, batch []string) (map[string]*RunRecord, error) {
	var records map[string]*RunRecord
	err := retry.Do(ctx, f.policy, func(attempt int) error {
		if attempt > 0 {
			f.logger.Debug("retrying metadata batch", "first", batch[0], "runs", len(batch), "attempt", attempt+1)
		}
		doc, err := f.source.FetchPackages(ctx, batch)
		if err != nil {
			return err
		}
		parsed, err := ParsePackages(doc, batch)
		if err != nil {
			return err
		}
		records = parsed
		return nil
	})
	return records, err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
