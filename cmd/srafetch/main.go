package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nishad/srafetch/internal/config"
)

// Version info
var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
	email      string
	nJobs      int
	retries    int
	metricsOut string
	noColor    bool
	quiet      bool
	debug      bool
)

// Loaded in PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "srafetch",
	Short: "Fetch SRA metadata and sequences",
	Long: `srafetch resolves NCBI SRA accessions to runs, fetches and normalizes their
metadata into a single table, and converts their reads into gzip FASTQ bundles
split by library layout.

Accessions of any level are accepted: runs, experiments, samples, studies and
BioProjects. Every failure is collected into an ID list that can be fed back
as input to retry exactly what failed.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Example: `  # Metadata for a study and a run
  srafetch get-metadata SRP012345 SRR1234567 --email you@example.org

  # Sequences for every run listed in a file
  srafetch get-sequences -i ids.tsv -o reads/

  # Retry what failed last time
  srafetch get-all -i failed.tsv -o out/`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: SRAFETCH_CONFIG or the user config dir)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (text|json)")
	pf.StringVar(&email, "email", "", "Contact email sent to NCBI")
	pf.IntVarP(&nJobs, "n-jobs", "j", 0, "Parallel workers per stage")
	pf.IntVar(&retries, "retries", -1, "Retries after the first attempt")
	pf.StringVar(&metricsOut, "metrics-file", "", "Write Prometheus metrics to this file when the command ends")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	pf.BoolVar(&debug, "debug", false, "Enable debug output")

	rootCmd.AddCommand(getMetadataCmd)
	rootCmd.AddCommand(getSequencesCmd)
	rootCmd.AddCommand(getAllCmd)
	rootCmd.AddCommand(getIDsCmd)
	rootCmd.AddCommand(mergeMetadataCmd)
	rootCmd.AddCommand(combineFailuresCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if email != "" {
		c.Entrez.Email = email
	}
	if nJobs > 0 {
		c.Jobs.NJobs = nJobs
	}
	if retries >= 0 {
		c.Jobs.Retries = retries
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	switch {
	case debug:
		c.Log.Level = "debug"
	case quiet:
		c.Log.Level = "warn"
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	logger = newLogger(c.Log.Level, c.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	printDebug("config: %s", configPath)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
