package main

import (
	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/downloader"
	"github.com/nishad/srafetch/internal/entrez"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/metadata"
	"github.com/nishad/srafetch/internal/metrics"
	"github.com/nishad/srafetch/internal/resolver"
	"github.com/nishad/srafetch/internal/search"
	"github.com/nishad/srafetch/internal/sequences"
	"github.com/nishad/srafetch/internal/service"
	"github.com/nishad/srafetch/internal/upload"
)

// app holds what a pipeline command needs.
type app struct {
	store   *database.DB
	index   *search.Index
	metrics *metrics.Metrics
	service *service.Service
}

// newApp wires the pipeline from cfg. withTool checks the SRA Toolkit is
// installed; metadata-only commands do not need it.
func newApp(withTool bool) (*app, error) {
	const op errors.Op = "main.newApp"

	if err := cfg.RequireEmail(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &app{metrics: metrics.New()}
	client := entrez.NewClient(entrez.Config{
		BaseURL:   cfg.Entrez.BaseURL,
		Email:     cfg.Entrez.Email,
		APIKey:    cfg.Entrez.APIKey,
		Timeout:   cfg.Entrez.Timeout,
		RateLimit: cfg.Entrez.RateLimit,
		Logger:    logger,
		Observer:  a.metrics,
	})
	policy := cfg.RetryPolicy()

	tool := downloader.NewSRAToolkit(downloader.Config{
		PrefetchPath:    cfg.Sequences.PrefetchPath,
		FasterqDumpPath: cfg.Sequences.FasterqDumpPath,
		SkipPrefetch:    cfg.Sequences.SkipPrefetch,
		MaxSize:         cfg.Sequences.MaxSize,
		Logger:          logger,
	})
	if withTool {
		if err := tool.CheckInstalled(); err != nil {
			return nil, err
		}
	}
	minFree, err := cfg.MinFreeSpaceBytes()
	if err != nil {
		return nil, err
	}

	var uploader *upload.Uploader
	if cfg.Upload.Enabled {
		s3, err := upload.NewS3Store(upload.Config{
			Endpoint:        cfg.Upload.Endpoint,
			Region:          cfg.Upload.Region,
			Bucket:          cfg.Upload.Bucket,
			Prefix:          cfg.Upload.Prefix,
			AccessKeyID:     cfg.Upload.AccessKeyID,
			SecretAccessKey: cfg.Upload.SecretAccessKey,
			UseSSL:          cfg.Upload.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		uploader = upload.NewUploader(s3, cfg.Upload.Bucket, cfg.Upload.Prefix, policy, logger)
	}

	if cfg.Store.Enabled {
		if a.store, err = database.Initialize(cfg.Store.Path); err != nil {
			return nil, errors.Wrap(op, err)
		}
	}
	if cfg.Search.Enabled {
		if a.index, err = search.Open(cfg.Search.IndexPath); err != nil {
			a.close()
			return nil, errors.Wrap(op, err)
		}
	}

	a.service = service.New(service.Config{
		Resolver: resolver.New(resolver.Config{
			Lookup: resolver.NewEntrezLookup(client, cfg.Entrez.PageSize),
			NJobs:  cfg.Jobs.NJobs,
			Retry:  policy,
			Logger: logger,
		}),
		Metadata: metadata.NewFetcher(metadata.FetcherConfig{
			Source:    client,
			BatchSize: cfg.Entrez.BatchSize,
			NJobs:     cfg.Jobs.NJobs,
			Retry:     policy,
			Logger:    logger,
		}),
		Sequences: sequences.Config{
			Tool:            tool,
			TempDir:         cfg.Sequences.TempDir,
			NJobs:           cfg.Jobs.NJobs,
			Threads:         cfg.Sequences.Threads,
			Retry:           policy,
			Restricted:      cfg.Sequences.RestrictedAccess,
			KeyFile:         cfg.Sequences.KeyFile,
			MinFreeSpace:    minFree,
			ExpansionFactor: cfg.Sequences.ExpansionFactor,
			Logger:          logger,
		},
		Store:    a.store,
		Index:    a.index,
		Uploader: uploader,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	return a, nil
}

// close flushes metrics and releases the store and index.
func (a *app) close() {
	if metricsOut != "" {
		if err := a.metrics.WriteTextfile(metricsOut); err != nil {
			printWarning("writing metrics: %v", err)
		}
	}
	if a.index != nil {
		errors.IgnoreError(a.index.Close(), "closing search index")
	}
	if a.store != nil {
		errors.IgnoreError(a.store.Close(), "closing store")
	}
}
