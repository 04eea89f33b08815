package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nishad/srafetch/internal/api"
	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/metrics"
	"github.com/nishad/srafetch/internal/search"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve fetched metadata over HTTP",
	Long: `Serve the local store over a JSON API: runs with filters and paging, the
metadata table as TSV, stored failures, and full-text search. The search index
is rebuilt from the store at start and then on the configured interval.`,
	Example: `  srafetch serve
  srafetch serve --port 3000 --enable-cors`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveCORS bool
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveCORS, "enable-cors", false, "Enable CORS for web access")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	db, err := database.Initialize(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var index *search.Index
	if cfg.Search.Enabled {
		if index, err = search.Open(cfg.Search.IndexPath); err != nil {
			return err
		}
		defer index.Close()
	}

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.New()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if index != nil {
		syncer := &search.Syncer{Index: index, Source: db, Interval: cfg.Server.SyncInterval, Logger: logger}
		go func() {
			if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("search sync stopped", "error", err)
			}
		}()
	}

	server := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		EnableCORS:   serveCORS,
		DefaultLimit: cfg.Search.DefaultLimit,
		Logger:       logger,
	}, db, index, m)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	printSuccess("Server ready at http://%s", server.Addr())
	printInfo("Store: %s", db.Path())

	select {
	case <-ctx.Done():
		printInfo("Shutting down server...")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.E(errors.Op("main.runServe"), errors.KindNetwork, err, "shutdown")
	}
	printSuccess("Server stopped")
	return nil
}
