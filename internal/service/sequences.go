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
	"github.com/nishad/srafetch/internal/sequences"
)

// SequencesResult is the outcome of a conversion batch.
type SequencesResult struct {
	*sequences.Result

	// Uploaded lists the object keys written when an uploader is set.
	Uploaded []string
	// UploadErr is the first upload failure; the local bundles are intact.
	UploadErr error
}

// GetSequences resolves ids and converts every run into outDir.
func (s *Service) GetSequences(ctx context.Context, ids []string, outDir string) (*SequencesResult, error) {
	const op errors.Op = "service.GetSequences"

	if err := s.cfg.Sequences.Validate(); err != nil {
		return nil, errors.Wrap(op, err)
	}
	res, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}

	var hints *metadata.Table
	if s.cfg.Store != nil {
		if hints, err = s.cfg.Store.LoadTable(ctx, accession.Strings(res.Runs)...); err != nil {
			errors.LogAndContinue(s.logger, string(op), err)
		}
	}

	out, err := s.fetchSequences(ctx, res.Runs, outDir, hints)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	out.Failed.Merge(res.Failed)
	return out, nil
}

func (s *Service) fetchSequences(ctx context.Context, runs []accession.ID, outDir string, hints *metadata.Table) (*SequencesResult, error) {
	start := time.Now()
	defer s.cfg.Metrics.ObserveStage(database.StageSequences, start)

	cfg := s.cfg.Sequences
	cfg.OutputDir = outDir
	cfg.SizeHints = sizeHints(hints)
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}

	ids := accession.Strings(runs)
	res, err := sequences.NewFetcher(cfg).Fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.cfg.Metrics.AddRuns(database.StageSequences, metrics.OutcomeOK, len(res.Runs)-res.Failed.Len())
	s.cfg.Metrics.AddRuns(database.StageSequences, metrics.OutcomeFailed, res.Failed.Len())
	s.recordFailures(ctx, database.StageSequences, res.Failed, ids)
	s.recordSequences(ctx, res)

	out := &SequencesResult{Result: res}
	if s.cfg.Uploader != nil {
		for _, b := range []*sequences.Bundle{res.Single, res.Paired} {
			keys, err := s.cfg.Uploader.UploadDir(ctx, b.Dir)
			out.Uploaded = append(out.Uploaded, keys...)
			if err != nil {
				s.logger.Warn("upload failed", "dir", b.Dir, "error", err)
				out.UploadErr = err
				break
			}
		}
	}
	return out, nil
}

func (s *Service) recordSequences(ctx context.Context, res *sequences.Result) {
	if s.cfg.Store == nil {
		return
	}
	for _, run := range res.Runs {
		var b *sequences.Bundle
		switch run.State {
		case sequences.StateSingle:
			b = res.Single
		case sequences.StatePaired:
			b = res.Paired
		default:
			continue
		}
		err := s.cfg.Store.RecordSequence(ctx, database.Sequence{
			Accession:   run.Accession,
			Layout:      layoutName(b),
			BundleDir:   b.Dir,
			Files:       run.Files,
			ConvertedAt: time.Now().UTC(),
		})
		if err != nil {
			errors.LogAndContinue(s.logger, "service.recordSequences", err)
		}
	}
}

func layoutName(b *sequences.Bundle) string {
	if b.Paired {
		return "PAIRED"
	}
	return "SINGLE"
}

// AllResult combines a metadata fetch and a conversion of the same runs.
type AllResult struct {
	Runs      []accession.ID
	Table     *metadata.Table
	Sequences *SequencesResult
	Failed    *failures.Tracker
}

// GetAll resolves ids once, then fetches metadata and sequences for every
// resolved run. Failures of both stages share one tracker.
func (s *Service) GetAll(ctx context.Context, ids []string, outDir string) (*AllResult, error) {
	const op errors.Op = "service.GetAll"

	if err := s.cfg.Sequences.Validate(); err != nil {
		return nil, errors.Wrap(op, err)
	}
	res, err := s.resolve(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	table, failed, err := s.fetchMetadata(ctx, res.Runs)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	seqs, err := s.fetchSequences(ctx, res.Runs, outDir, table)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}

	tracker := failures.Combine(res.Failed, failed, seqs.Failed)
	return &AllResult{Runs: res.Runs, Table: table, Sequences: seqs, Failed: tracker}, nil
}
