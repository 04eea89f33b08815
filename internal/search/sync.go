package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/metadata"
)

// TableSource supplies stored metadata. With no IDs it returns every run.
type TableSource interface {
	LoadTable(ctx context.Context, ids ...string) (*metadata.Table, error)
}

// Rebuild indexes every run held by src and returns the number indexed.
func (ix *Index) Rebuild(ctx context.Context, src TableSource) (int, error) {
	const op errors.Op = "search.Rebuild"

	t, err := src.LoadTable(ctx)
	if err != nil {
		return 0, errors.Wrap(op, err)
	}
	n, err := ix.IndexTable(t)
	if err != nil {
		return 0, errors.Wrap(op, err)
	}
	return n, nil
}

// Syncer keeps an index current with a TableSource by reindexing on an
// interval.
type Syncer struct {
	Index    *Index
	Source   TableSource
	Interval time.Duration
	Logger   *slog.Logger
}

// Run reindexes once, then every Interval until ctx is done. A zero Interval
// reindexes once and returns.
func (s *Syncer) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reindex := func() error {
		start := time.Now()
		n, err := s.Index.Rebuild(ctx, s.Source)
		if err != nil {
			return err
		}
		logger.Debug("search index synced", "runs", n, "took", time.Since(start))
		return nil
	}

	if err := reindex(); err != nil {
		return err
	}
	if s.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := reindex(); err != nil {
				errors.LogAndContinue(logger, "search sync", err)
			}
		}
	}
}
