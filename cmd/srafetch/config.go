package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nishad/srafetch/internal/config"
	"github.com/nishad/srafetch/internal/paths"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage srafetch configuration",
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show all active paths",
	RunE:  runConfigPaths,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after defaults, the config file, environment and flags are applied. Secrets are masked.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  srafetch config init
  srafetch config init --force`,
	RunE: runConfigInit,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing configuration")

	configCmd.AddCommand(configPathsCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigPaths(cmd *cobra.Command, args []string) error {
	p := paths.GetPaths()
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, colorize(colorBold, "Base Directories:"))
	fmt.Fprintf(w, "  Config:  %s\n", p.ConfigDir)
	fmt.Fprintf(w, "  Data:    %s\n", p.DataDir)
	fmt.Fprintf(w, "  Cache:   %s\n", p.CacheDir)
	fmt.Fprintf(w, "  State:   %s\n", p.StateDir)
	fmt.Fprintln(w)

	checks := []struct{ name, path string }{
		{"Config", configPath},
		{"Store", cfg.Store.Path},
		{"Index", cfg.Search.IndexPath},
		{"Temp", cfg.Sequences.TempDir},
	}
	fmt.Fprintln(w, colorize(colorBold, "Active Paths:"))
	for _, c := range checks {
		status := colorize(colorGray, "✗ not found")
		if _, err := os.Stat(c.path); err == nil {
			status = colorize(colorGreen, "✓ exists")
		}
		fmt.Fprintf(w, "  %-8s %s %s\n", c.name+":", c.path, status)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", colorize(colorBold, "Config File:"), configPath)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), colorize(colorYellow, "  (using defaults, no config file found)"))
	}
	return writeConfig(cmd.OutOrStdout(), masked(cfg))
}

// masked returns a copy of c with credentials replaced.
func masked(c *config.Config) *config.Config {
	out := *c
	for _, s := range []*string{&out.Entrez.APIKey, &out.Upload.AccessKeyID, &out.Upload.SecretAccessKey} {
		if *s != "" {
			*s = "********"
		}
	}
	return &out
}

func writeConfig(w io.Writer, c *config.Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		key, value, ok := strings.Cut(line, ": ")
		switch {
		case strings.HasSuffix(line, ":") && !strings.HasPrefix(line, " "):
			fmt.Fprintln(w, colorize(colorBold, line))
		case ok:
			fmt.Fprintf(w, "%s: %s\n", colorize(colorCyan, key), value)
		default:
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		printWarning("Configuration already exists at %s", configPath)
		printInfo("Use --force to overwrite")
		return nil
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}
	printSuccess("Configuration created at %s", configPath)
	return nil
}
