package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/metadata"
)

var mergeMetadataCmd = &cobra.Command{
	Use:   "merge-metadata FILE...",
	Short: "Merge metadata tables into one",
	Long: `Merge metadata TSV tables by run ID. A run present in several inputs must
have the same filled values in each; the merge stops at the first difference
and names the run and column.`,
	Example: `  srafetch merge-metadata batch1.tsv batch2.tsv -o metadata.tsv`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runMergeMetadata,
}

var combineFailuresCmd = &cobra.Command{
	Use:     "combine-failures FILE...",
	Short:   "Combine failed-ID lists into one",
	Long:    `Combine failed-ID lists. When an ID appears in several lists the message from the later file is kept.`,
	Example: `  srafetch combine-failures failed_meta.tsv failed_seq.tsv -o failed.tsv`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCombineFailures,
}

func init() {
	mergeMetadataCmd.Flags().StringP("output", "o", "-", "Merged table (- for stdout)")
	combineFailuresCmd.Flags().StringP("output", "o", "-", "Combined list (- for stdout)")
}

func runMergeMetadata(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	merged, err := mergeTableFiles(args)
	if err != nil {
		return err
	}
	if err := writeFile(out, merged.WriteTSV); err != nil {
		return err
	}
	printSuccess("Merged %d table(s) into %d run(s)", len(args), merged.Len())
	return nil
}

func mergeTableFiles(paths []string) (*metadata.Table, error) {
	const op errors.Op = "main.mergeTableFiles"

	tables := make([]*metadata.Table, 0, len(paths))
	for _, p := range paths {
		t, err := readFileWith(p, metadata.ReadTSV)
		if err != nil {
			return nil, errors.WrapMsg(op, p, err)
		}
		tables = append(tables, t)
	}
	merged, err := metadata.Merge(tables...)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	return merged, nil
}

func runCombineFailures(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	combined, err := combineFailureFiles(args)
	if err != nil {
		return err
	}
	err = writeFile(out, func(w io.Writer) error {
		_, err := combined.WriteTo(w)
		return err
	})
	if err != nil {
		return err
	}
	printSuccess("Combined %d list(s) into %d failed ID(s)", len(args), combined.Len())
	return nil
}

func combineFailureFiles(paths []string) (*failures.Tracker, error) {
	trackers := make([]*failures.Tracker, 0, len(paths))
	for _, p := range paths {
		t, err := readFileWith(p, failures.ReadFrom)
		if err != nil {
			return nil, errors.WrapMsg(errors.Op("main.combineFailureFiles"), p, err)
		}
		trackers = append(trackers, t)
	}
	return failures.Combine(trackers...), nil
}

func readFileWith[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, errors.E(errors.Op("main.readFile"), errors.KindIO, err)
	}
	defer f.Close()
	return read(f)
}
