package service

import (
	"context"
	"time"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/metadata"
	"github.com/nishad/srafetch/internal/metrics"
)

// MetadataResult is the normalized table and every run that did not make it.
type MetadataResult struct {
	Runs   []accession.ID
	Table  *metadata.Table
	Failed *failures.Tracker
}

// GetMetadata resolves ids and fetches the metadata table of every run.
func (s *Service) GetMetadata(ctx context.Context, ids []string) (*MetadataResult, error) {
	const op errors.Op = "service.GetMetadata"

	res, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	table, failed, err := s.fetchMetadata(ctx, res.Runs)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	failed.Merge(res.Failed)
	return &MetadataResult{Runs: res.Runs, Table: table, Failed: failed}, nil
}

// fetchMetadata fetches runs and persists the table when a store is set.
func (s *Service) fetchMetadata(ctx context.Context, runs []accession.ID) (*metadata.Table, *failures.Tracker, error) {
	start := time.Now()
	defer s.cfg.Metrics.ObserveStage(database.StageMetadata, start)

	ids := accession.Strings(runs)
	table, failed, err := s.cfg.Metadata.FetchTable(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	s.cfg.Metrics.AddRuns(database.StageMetadata, metrics.OutcomeOK, table.Len())
	s.cfg.Metrics.AddRuns(database.StageMetadata, metrics.OutcomeFailed, failed.Len())
	s.recordFailures(ctx, database.StageMetadata, failed, ids)
	s.persistTable(ctx, table)
	return table, failed, nil
}

func (s *Service) persistTable(ctx context.Context, t *metadata.Table) {
	if t.Len() == 0 {
		return
	}
	if s.cfg.Store != nil {
		n, err := s.cfg.Store.SaveTable(ctx, t)
		if err != nil {
			// A conflict with stored rows leaves the store untouched.
			errors.LogAndContinue(s.logger, "service.persistTable", err)
		} else {
			s.logger.Debug("stored metadata", "runs", n, "db", s.cfg.Store.Path())
		}
	}
	if s.cfg.Index != nil {
		if _, err := s.cfg.Index.IndexTable(t); err != nil {
			errors.LogAndContinue(s.logger, "service.persistTable", err)
		}
	}
}
