package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search fetched metadata",
	Long: `Search the local index of every run fetched so far. The query uses the
Bleve query-string syntax; --filter narrows on exact field values.`,
	Example: `  srafetch search stool --filter platform=ILLUMINA
  srafetch search "organism:musculus" --format ids
  srafetch search --rebuild`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var (
	searchFilters map[string]string
	searchFuzzy   bool
	searchLimit   int
	searchOffset  int
	searchFormat  string
	searchFacets  bool
	searchRebuild bool
)

func init() {
	searchCmd.Flags().StringToStringVar(&searchFilters, "filter", nil, "Field filter as key=value (repeatable)")
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "Tolerate one typo per term")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Maximum results to return")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "Number of results to skip")
	searchCmd.Flags().StringVarP(&searchFormat, "format", "f", "table", "Output format (table|json|ids)")
	searchCmd.Flags().BoolVar(&searchFacets, "facets", false, "Show counts by platform, strategy, layout and source")
	searchCmd.Flags().BoolVar(&searchRebuild, "rebuild", false, "Reindex every stored run before searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	const op errors.Op = "main.runSearch"

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	index, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	if searchRebuild {
		db, err := database.Initialize(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := index.Rebuild(cmd.Context(), db)
		if err != nil {
			return err
		}
		printSuccess("Indexed %d run(s)", n)
		if len(args) == 0 {
			return nil
		}
	}

	req := search.Request{
		Filters: searchFilters,
		Fuzzy:   searchFuzzy,
		Limit:   searchLimit,
		Offset:  searchOffset,
	}
	if len(args) > 0 {
		req.Query = args[0]
	}
	res, err := index.Search(req)
	if err != nil {
		return errors.Wrap(op, err)
	}
	return printResults(cmd.OutOrStdout(), res)
}

func printResults(w io.Writer, res *search.Result) error {
	switch searchFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "ids":
		for _, h := range res.Hits {
			fmt.Fprintln(w, h.ID)
		}
		return nil
	case "table":
	default:
		return errors.Errorf(errors.Op("main.printResults"), errors.KindValidation, "unknown format %q", searchFormat)
	}

	if len(res.Hits) == 0 {
		printInfo("No runs match")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, colorize(colorBold, "RUN\tORGANISM\tPLATFORM\tLAYOUT\tSTRATEGY\tSCORE"))
	for _, h := range res.Hits {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.3f\n", h.ID,
			field(h, "organism"), field(h, "platform"), field(h, "library_layout"), field(h, "library_strategy"), h.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if searchFacets {
		names := make([]string, 0, len(res.Facets))
		for name := range res.Facets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			terms := res.Facets[name]
			parts := make([]string, len(terms))
			for i, t := range terms {
				parts[i] = fmt.Sprintf("%s (%d)", t.Term, t.Count)
			}
			fmt.Fprintf(w, "%s: %s\n", colorize(colorBold, name), strings.Join(parts, ", "))
		}
	}
	fmt.Fprintf(os.Stderr, "%s\n", colorize(colorGray, fmt.Sprintf("%d of %d run(s) in %s", len(res.Hits), res.Total, res.Took)))
	return nil
}

func field(h search.Hit, name string) string {
	if v := h.Fields[name]; v != "" {
		return v
	}
	return "NA"
}
