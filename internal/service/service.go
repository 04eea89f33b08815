// Package service runs the fetch pipeline: it resolves accessions, fetches
// and normalizes metadata, converts sequences and records the outcome in the
// optional store, search index and object storage.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/metadata"
	"github.com/nishad/srafetch/internal/metrics"
	"github.com/nishad/srafetch/internal/resolver"
	"github.com/nishad/srafetch/internal/search"
	"github.com/nishad/srafetch/internal/sequences"
	"github.com/nishad/srafetch/internal/upload"
)

// Config wires the stages. Store, Index, Uploader and Metrics are optional.
type Config struct {
	Resolver *resolver.Resolver
	Metadata *metadata.Fetcher

	// Sequences is the template for each conversion batch; OutputDir and
	// SizeHints are filled in per call.
	Sequences sequences.Config

	Store    *database.DB
	Index    *search.Index
	Uploader *upload.Uploader
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Service runs pipeline stages.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}
}

// GetIDs returns the runs behind ids, or behind a BioSample text query when
// query is set. Accessions that could not be expanded end up in the tracker.
func (s *Service) GetIDs(ctx context.Context, query string, ids []string) ([]accession.ID, *failures.Tracker, error) {
	const op errors.Op = "service.GetIDs"

	if query != "" {
		start := time.Now()
		defer s.cfg.Metrics.ObserveStage(database.StageResolve, start)

		runs, err := s.cfg.Resolver.ResolveQuery(ctx, query)
		if err != nil {
			return nil, nil, errors.Wrap(op, err)
		}
		s.cfg.Metrics.AddRuns(database.StageResolve, metrics.OutcomeOK, len(runs))
		return runs, failures.New(), nil
	}

	res, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(op, err)
	}
	return res.Runs, res.Failed, nil
}

// resolve expands ids and records expansion failures.
func (s *Service) resolve(ctx context.Context, ids []string) (*resolver.Result, error) {
	start := time.Now()
	defer s.cfg.Metrics.ObserveStage(database.StageResolve, start)

	res, err := s.cfg.Resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.cfg.Metrics.AddRuns(database.StageResolve, metrics.OutcomeOK, len(res.Runs))
	s.cfg.Metrics.AddRuns(database.StageResolve, metrics.OutcomeFailed, res.Failed.Len())
	s.recordFailures(ctx, database.StageResolve, res.Failed, ids)
	return res, nil
}

// recordFailures replaces the stored failures of attempted ids at stage with
// the ones in failed. Store errors are logged, never returned: the files the
// caller writes are the primary output.
func (s *Service) recordFailures(ctx context.Context, stage string, failed *failures.Tracker, attempted []string) {
	if s.cfg.Store == nil {
		return
	}
	var ok []string
	for _, id := range attempted {
		if _, bad := failed.Message(id); !bad {
			ok = append(ok, id)
		}
	}
	if err := s.cfg.Store.ClearFailures(ctx, stage, ok); err != nil {
		errors.LogAndContinue(s.logger, "service.recordFailures", err)
	}
	if err := s.cfg.Store.SaveFailures(ctx, stage, failed); err != nil {
		errors.LogAndContinue(s.logger, "service.recordFailures", err)
	}
}

// sizeHints reads the archive size of each run from the bytes column.
func sizeHints(t *metadata.Table) map[string]uint64 {
	if t == nil {
		return nil
	}
	hints := make(map[string]uint64, t.Len())
	for _, id := range t.IDs() {
		if n, err := strconv.ParseUint(t.Get(id, "bytes"), 10, 64); err == nil {
			hints[id] = n
		}
	}
	return hints
}
