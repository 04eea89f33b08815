// Package downloader runs the SRA Toolkit to turn a run accession into FASTQ
// files on local disk.
package downloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
)

// exitAlreadyPresent is the fasterq-dump exit status when its output files
// already exist.
const exitAlreadyPresent = 3

// Request describes one conversion.
type Request struct {
	Accession string
	OutputDir string // receives <acc>.fastq or <acc>_1.fastq / <acc>_2.fastq
	TempDir   string // scratch space for the toolkit
	Threads   int
	KeyFile   string // dbGaP .ngc key for restricted runs; empty for open data
}

// ToolError is a failed toolkit invocation. Message holds the captured
// diagnostic output.
type ToolError struct {
	Tool     string
	ExitCode int
	Message  string
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, lastLines(msg, 5))
}

// Config configures SRAToolkit.
type Config struct {
	PrefetchPath    string // defaults to "prefetch" on PATH
	FasterqDumpPath string // defaults to "fasterq-dump" on PATH
	SkipPrefetch    bool
	MaxSize         string // prefetch --max-size, e.g. "100G"
	Logger          *slog.Logger
}

// SRAToolkit converts runs with prefetch followed by fasterq-dump.
type SRAToolkit struct {
	config Config
	logger *slog.Logger
}

// NewSRAToolkit creates a toolkit runner.
func NewSRAToolkit(config Config) *SRAToolkit {
	if config.PrefetchPath == "" {
		config.PrefetchPath = "prefetch"
	}
	if config.FasterqDumpPath == "" {
		config.FasterqDumpPath = "fasterq-dump"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SRAToolkit{config: config, logger: logger}
}

// CheckInstalled reports a config error when a required binary is not found.
func (t *SRAToolkit) CheckInstalled() error {
	const op errors.Op = "downloader.CheckInstalled"

	bins := []string{t.config.FasterqDumpPath}
	if !t.config.SkipPrefetch {
		bins = append(bins, t.config.PrefetchPath)
	}
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.E(op, errors.KindConfig, err, "SRA Toolkit binary "+bin+" not found")
		}
	}
	return nil
}

// Dump fetches and converts one run into req.OutputDir. The returned error is
// a *ToolError when a tool exits unsuccessfully.
func (t *SRAToolkit) Dump(ctx context.Context, req Request) error {
	const op errors.Op = "downloader.Dump"

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	tmp := req.TempDir
	if tmp == "" {
		tmp = req.OutputDir
	}

	source := req.Accession
	if !t.config.SkipPrefetch {
		args := []string{req.Accession, "--output-directory", tmp}
		if t.config.MaxSize != "" {
			args = append(args, "--max-size", t.config.MaxSize)
		}
		if req.KeyFile != "" {
			args = append(args, "--ngc", req.KeyFile)
		}
		if err := t.run(ctx, t.config.PrefetchPath, args, nil); err != nil {
			return err
		}
		if sra := prefetchedFile(tmp, req.Accession); sra != "" {
			source = sra
		}
	}

	args := []string{
		source,
		"--outdir", req.OutputDir,
		"--temp", tmp,
		"--split-3",
		"--skip-technical",
		"--force",
	}
	if req.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(req.Threads))
	}
	if req.KeyFile != "" {
		args = append(args, "--ngc", req.KeyFile)
	}

	alreadyPresent := func() bool { return HasOutput(req.OutputDir, req.Accession) }
	return t.run(ctx, t.config.FasterqDumpPath, args, alreadyPresent)
}

// run executes bin with args, capturing stderr as the failure message. When
// accept is set, exit status 3 counts as success if accept reports true.
func (t *SRAToolkit) run(ctx context.Context, bin string, args []string, accept func() bool) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	t.logger.Debug("running SRA Toolkit", "cmd", bin, "args", strings.Join(args, " "))
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == exitAlreadyPresent && accept != nil && accept() {
			t.logger.Info("output already present", "cmd", filepath.Base(bin), "args", args[0])
			return nil
		}
		return &ToolError{Tool: filepath.Base(bin), ExitCode: code, Message: stderr.String()}
	}
	return &ToolError{Tool: filepath.Base(bin), ExitCode: -1, Message: err.Error()}
}

// prefetchedFile returns the .sra file prefetch left for acc, if any.
func prefetchedFile(dir, acc string) string {
	for _, candidate := range []string{
		filepath.Join(dir, acc, acc+".sra"),
		filepath.Join(dir, acc, acc+".sralite"),
		filepath.Join(dir, acc+".sra"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// HasOutput reports whether dir holds any FASTQ produced for acc.
func HasOutput(dir, acc string) bool {
	for _, name := range []string{acc + ".fastq", acc + "_1.fastq", acc + "_2.fastq"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
