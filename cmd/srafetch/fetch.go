package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/metadata"
	"github.com/nishad/srafetch/internal/service"
	"github.com/nishad/srafetch/internal/sequences"
)

var getMetadataCmd = &cobra.Command{
	Use:   "get-metadata [accession...]",
	Short: "Fetch and normalize run metadata",
	Long: `Resolve the given accessions to runs and fetch their metadata from NCBI.

The result is one TSV table with a row per run: fixed identity and library
columns first, then every other field, including the submitter's custom
sample attributes, in alphabetical order. Missing values read NA.`,
	Example: `  srafetch get-metadata PRJNA734376 -o metadata.tsv
  srafetch get-metadata -i ids.tsv --failed failed.tsv`,
	RunE: runGetMetadata,
}

var getSequencesCmd = &cobra.Command{
	Use:   "get-sequences [accession...]",
	Short: "Download runs and bundle their reads by layout",
	Long: `Resolve the given accessions to runs, convert each run to FASTQ with the SRA
Toolkit and collect the gzip-compressed reads into single/ and paired/
bundles, each with a MANIFEST and a metadata.yml.`,
	Example: `  srafetch get-sequences SRR1234567 SRR1234568 -o reads/
  srafetch get-sequences -i ids.tsv --restricted --key-file prj_1234.ngc`,
	RunE: runGetSequences,
}

var getAllCmd = &cobra.Command{
	Use:   "get-all [accession...]",
	Short: "Fetch metadata and sequences in one go",
	Long: `Resolve the accessions once, then fetch metadata and sequences for every
run. The output directory receives metadata.tsv, the single/ and paired/
bundles and one failed-ID list covering both stages.`,
	Example: `  srafetch get-all SRP012345 -o out/`,
	RunE:    runGetAll,
}

var getIDsCmd = &cobra.Command{
	Use:   "get-ids [accession...]",
	Short: "List the runs behind accessions or a BioSample query",
	Example: `  srafetch get-ids PRJNA734376
  srafetch get-ids --query "human gut metagenome AND soil" -o ids.tsv`,
	RunE: runGetIDs,
}

var (
	idsFile    string
	failedPath string
	restricted bool
	keyFile    string
	idsQuery   string
)

func init() {
	// output defaults differ per command and are read with GetString.
	for _, c := range []*cobra.Command{getMetadataCmd, getSequencesCmd, getAllCmd, getIDsCmd} {
		c.Flags().StringVarP(&idsFile, "ids", "i", "", "ID list file with accessions (- for stdin)")
	}
	getMetadataCmd.Flags().StringP("output", "o", "metadata.tsv", "Metadata table (- for stdout)")
	getSequencesCmd.Flags().StringP("output", "o", "sequences", "Output directory for the bundles")
	getAllCmd.Flags().StringP("output", "o", "srafetch-out", "Output directory")
	getIDsCmd.Flags().StringP("output", "o", "-", "Run ID list (- for stdout)")
	getIDsCmd.Flags().StringVar(&idsQuery, "query", "", "BioSample text query instead of accessions")

	for _, c := range []*cobra.Command{getMetadataCmd, getSequencesCmd, getAllCmd} {
		c.Flags().StringVar(&failedPath, "failed", "", "Failed-ID list (default: failed_ids.tsv next to the output)")
	}
	for _, c := range []*cobra.Command{getSequencesCmd, getAllCmd} {
		c.Flags().BoolVar(&restricted, "restricted", false, "Fetch controlled-access data with a dbGaP key")
		c.Flags().StringVar(&keyFile, "key-file", "", "dbGaP repository key (.ngc)")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func applySequenceFlags() {
	if restricted {
		cfg.Sequences.RestrictedAccess = true
	}
	if keyFile != "" {
		cfg.Sequences.KeyFile = keyFile
	}
}

// failedListPath returns --failed, or failed_ids.tsv inside dir.
func failedListPath(dir string) string {
	if failedPath != "" {
		return failedPath
	}
	return filepath.Join(dir, "failed_ids.tsv")
}

func writeTable(path string, t *metadata.Table) error {
	return writeFile(path, t.WriteTSV)
}

func runGetMetadata(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	ids, err := readIDs(args, idsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	var res *service.MetadataResult
	err = stage("Fetching metadata", func() error {
		res, err = a.service.GetMetadata(ctx, ids)
		return err
	})
	if err != nil {
		return err
	}

	if err := writeTable(outPath, res.Table); err != nil {
		return err
	}
	printSuccess("Metadata for %d run(s) written to %s", res.Table.Len(), outPath)

	dir := "."
	if outPath != "-" {
		dir = filepath.Dir(outPath)
	}
	return writeFailures(failedListPath(dir), res.Failed)
}

func runGetSequences(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	ids, err := readIDs(args, idsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	applySequenceFlags()
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	var res *service.SequencesResult
	err = stage("Fetching sequences", func() error {
		res, err = a.service.GetSequences(ctx, ids, outPath)
		return err
	})
	if err != nil {
		return err
	}
	reportSequences(res)
	return writeFailures(failedListPath(outPath), res.Failed)
}

func runGetAll(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	ids, err := readIDs(args, idsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	applySequenceFlags()
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	var res *service.AllResult
	err = stage("Fetching metadata and sequences", func() error {
		res, err = a.service.GetAll(ctx, ids, outPath)
		return err
	})
	if err != nil {
		return err
	}

	tablePath := filepath.Join(outPath, "metadata.tsv")
	if err := writeTable(tablePath, res.Table); err != nil {
		return err
	}
	printSuccess("Metadata for %d run(s) written to %s", res.Table.Len(), tablePath)
	reportSequences(res.Sequences)
	return writeFailures(failedListPath(outPath), res.Failed)
}

func reportSequences(res *service.SequencesResult) {
	for _, b := range []*sequences.Bundle{res.Single, res.Paired} {
		if b.IsPlaceholder() {
			printInfo("%s: no runs (placeholder %s)", b.Dir, sequences.PlaceholderID)
			continue
		}
		printSuccess("%s: %d run(s), %s", b.Dir, len(b.SampleIDs()), humanize.IBytes(dirSize(b.Dir)))
	}
	if len(res.Uploaded) > 0 {
		printSuccess("Uploaded %d object(s)", len(res.Uploaded))
	}
	if res.UploadErr != nil {
		printWarning("upload incomplete: %v", res.UploadErr)
	}
}

func dirSize(dir string) uint64 {
	var total uint64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if info, err := e.Info(); err == nil && info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
	}
	return total
}

func runGetIDs(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	var ids []string
	if idsQuery == "" {
		var err error
		if ids, err = readIDs(args, idsFile, cmd.InOrStdin()); err != nil {
			return err
		}
	}
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	var (
		runs   []accession.ID
		failed *failures.Tracker
	)
	err = stage("Resolving accessions", func() error {
		runs, failed, err = a.service.GetIDs(ctx, idsQuery, ids)
		return err
	})
	if err != nil {
		return err
	}

	entries := make([]accession.Entry, len(runs))
	for i, id := range runs {
		entries[i] = accession.Entry{ID: id.String()}
	}
	if err := writeFile(outPath, func(w io.Writer) error {
		return accession.WriteList(w, entries, false)
	}); err != nil {
		return err
	}
	printSuccess("%d run(s) found", len(runs))
	for _, r := range failed.Records() {
		printWarning("%s: %s", r.ID, r.Message)
	}
	return nil
}
