package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/failures"
	"github.com/nishad/srafetch/internal/ui"
)

// Color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func useColor() bool {
	return !noColor && ui.IsTerminal(os.Stdout) && os.Getenv("NO_COLOR") == ""
}

// Apply color if terminal output and color enabled
func colorize(color, text string) string {
	if useColor() {
		return color + text + colorReset
	}
	return text
}

func printError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorRed, "✗"), msg)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorGreen, "✓"), msg)
	}
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(os.Stderr, "%s\n", colorize(colorCyan, msg))
	}
}

func printWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorYellow, "⚠"), msg)
}

func printDebug(format string, args ...interface{}) {
	if debug {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(os.Stderr, "%s %s\n", colorize(colorGray, "[DEBUG]"), msg)
	}
}

// stage runs fn behind a spinner on stderr.
func stage(message string, fn func() error) error {
	var w io.Writer = os.Stderr
	if quiet {
		w = io.Discard
	}
	return ui.Run(w, message, !quiet && !noColor && ui.IsTerminal(os.Stderr), fn)
}

// readIDs collects accessions from args and from the ID list at path ("-"
// reads stdin). Duplicates are kept; the resolver de-duplicates.
func readIDs(args []string, path string, stdin io.Reader) ([]string, error) {
	const op errors.Op = "main.readIDs"

	ids := append([]string(nil), args...)
	if path == "" {
		if len(ids) == 0 {
			return nil, errors.E(op, errors.KindValidation, "no accessions given; pass IDs as arguments or with --ids")
		}
		return ids, nil
	}

	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.E(op, errors.KindIO, err)
		}
		defer f.Close()
		r = f
	}
	entries, err := accession.ReadList(r)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	ids = append(ids, accession.IDs(entries)...)
	if len(ids) == 0 {
		return nil, errors.Errorf(op, errors.KindValidation, "no accessions found in %s", path)
	}
	return ids, nil
}

// writeFile writes through fn to path, or to stdout for "-". The parent
// directory is created as needed.
func writeFile(path string, fn func(io.Writer) error) error {
	const op errors.Op = "main.writeFile"

	if path == "-" {
		return fn(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	return nil
}

// writeFailures writes the failed-ID list, which is produced even when
// nothing failed, and summarizes it on stderr.
func writeFailures(path string, t *failures.Tracker) error {
	err := writeFile(path, func(w io.Writer) error {
		_, err := t.WriteTo(w)
		return err
	})
	if err != nil {
		return err
	}
	if t.Empty() {
		printSuccess("No failures")
		return nil
	}
	printWarning("%d accession(s) failed, listed in %s", t.Len(), path)
	if !quiet {
		errors.IgnoreError(t.Report(os.Stderr), "writing failure report")
	}
	return nil
}
