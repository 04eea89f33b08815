package metadata

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func normalizeDoc(t *testing.T, doc []byte, ids ...string) *Table {
	t.Helper()
	records, err := ParsePackages(doc, ids)
	if err != nil {
		t.Fatalf("ParsePackages: %v", err)
	}
	var list []*RunRecord
	for _, id := range ids {
		if r, ok := records[id]; ok {
			list = append(list, r)
		}
	}
	table, err := Normalize(list)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return table
}

func TestNormalizeCanonicalColumns(t *testing.T) {
	doc := packageSet(packageXML(pkgOpts{runs: []string{"SRR1"}}))
	table := normalizeDoc(t, doc, "SRR1")

	want := map[string]string{
		"library_layout":    "PAIRED",
		"platform":          "ILLUMINA",
		"instrument":        "Model X",
		"organism":          "human gut metagenome",
		"tax_id":            "408170",
		"bases":             "15000",
		"spots":             "100",
		"bytes":             "4096",
		"avg_spot_len":      "150",
		"library_strategy":  "AMPLICON",
		"library_source":    "METAGENOMIC",
		"library_selection": "PCR",
		"library_name":      "lib-1",
		"experiment_id":     "SRX100",
		"study_id":          "SRP100",
		"bioproject_id":     "PRJNA100",
		"sample_id":         "SRS100",
		"biosample_id":      "SAMN100",
		"sample_name":       "S1",
		"sample_title":      "Sample one",
		"center_name":       "Some Center",
		"consent":           "public",
	}
	for col, v := range want {
		if got := table.Get("SRR1", col); got != v {
			t.Errorf("%s = %q, want %q", col, got, v)
		}
	}

	cols := table.Columns()
	if diff := cmp.Diff(CanonicalColumns(), cols[:len(CanonicalColumns())]); diff != "" {
		t.Errorf("canonical columns not first in fixed order (-want +got):\n%s", diff)
	}
}

func TestNormalizeRenamesInsteadOfDuplicating(t *testing.T) {
	doc := packageSet(packageXML(pkgOpts{runs: []string{"SRR1"}}))
	table := normalizeDoc(t, doc, "SRR1")

	for _, consumed := range []string{
		"EXPERIMENT.PLATFORM.ILLUMINA.INSTRUMENT_MODEL",
		"Pool.Member.organism",
		"SAMPLE.SAMPLE_NAME.SCIENTIFIC_NAME",
		"RUN_SET.RUN.total_spots",
		"RUN_SET.RUN.accession",
		"RUN_SET.RUN.is_public",
		"EXPERIMENT.DESIGN.LIBRARY_DESCRIPTOR.LIBRARY_STRATEGY",
	} {
		for _, c := range table.Columns() {
			if c == consumed {
				t.Errorf("column %s should have been renamed to a canonical column", consumed)
			}
		}
	}

	if got := table.Get("SRR1", "EXPERIMENT.DESIGN.DESIGN_DESCRIPTION"); got != "gut samples" {
		t.Errorf("generic leaf = %q", got)
	}
	if got := table.Get("SRR1", "EXPERIMENT.alias"); got != "exp-1" {
		t.Errorf("attribute column = %q", got)
	}
}

func TestNormalizeConcatenatesRepeatedTags(t *testing.T) {
	doc := packageSet(packageXML(pkgOpts{
		runs: []string{"SRR1"},
		sampleTags: [][2]string{
			{"env_medium", "stool"},
			{"host", "Homo sapiens"},
			{"env_medium", "feces"},
			{"env_medium", "stool"},
		},
	}))
	table := normalizeDoc(t, doc, "SRR1")

	if got := table.Get("SRR1", "env_medium"); got != "stool; feces" {
		t.Errorf("env_medium = %q, want %q", got, "stool; feces")
	}
	if got := table.Get("SRR1", "host"); got != "Homo sapiens" {
		t.Errorf("host = %q", got)
	}
	for _, c := range table.Columns() {
		if c == "SAMPLE.SAMPLE_ATTRIBUTES.SAMPLE_ATTRIBUTE.TAG" {
			t.Error("attribute block flattened as a path column")
		}
	}
}

func TestNormalizeTagsDoNotOverrideCanonicalColumns(t *testing.T) {
	doc := packageSet(packageXML(pkgOpts{
		runs: []string{"SRR1"},
		sampleTags: [][2]string{
			{"sample_name", "gut-A"},
			{"organism", "Homo sapiens"},
		},
	}))
	table := normalizeDoc(t, doc, "SRR1")

	want := map[string]string{
		"sample_name":      "S1",
		"organism":         "human gut metagenome",
		"attr.sample_name": "gut-A",
		"attr.organism":    "Homo sapiens",
	}
	for col, v := range want {
		if got := table.Get("SRR1", col); got != v {
			t.Errorf("%s = %q, want %q", col, got, v)
		}
	}
}

func TestNormalizeNoRaggedRows(t *testing.T) {
	doc := packageSet(
		packageXML(pkgOpts{runs: []string{"SRR1"}, sampleTags: [][2]string{{"depth", "10m"}}}),
		packageXML(pkgOpts{runs: []string{"SRR2"}, sampleTags: [][2]string{{"ph", "7"}}, platform: "OXFORD_NANOPORE", layout: "SINGLE"}),
	)
	table := normalizeDoc(t, doc, "SRR1", "SRR2")

	if got := table.Get("SRR1", "ph"); got != Missing {
		t.Errorf("SRR1 ph = %q, want %q", got, Missing)
	}
	if got := table.Get("SRR2", "depth"); got != Missing {
		t.Errorf("SRR2 depth = %q, want %q", got, Missing)
	}
	for _, row := range table.Rows() {
		if len(row.Values) != len(table.Columns()) {
			t.Errorf("row %s has %d cells, want %d", row.ID, len(row.Values), len(table.Columns()))
		}
	}
	if got := table.Get("SRR2", "platform"); got != "OXFORD_NANOPORE" {
		t.Errorf("SRR2 platform = %q", got)
	}
}

func TestNormalizeColumnUnionIsBounded(t *testing.T) {
	a := normalizeDoc(t, packageSet(packageXML(pkgOpts{runs: []string{"SRR1"}, sampleTags: [][2]string{{"a", "1"}}})), "SRR1")
	b := normalizeDoc(t, packageSet(packageXML(pkgOpts{runs: []string{"SRR2"}, sampleTags: [][2]string{{"b", "2"}}})), "SRR2")

	doc := packageSet(
		packageXML(pkgOpts{runs: []string{"SRR1"}, sampleTags: [][2]string{{"a", "1"}}}),
		packageXML(pkgOpts{runs: []string{"SRR2"}, sampleTags: [][2]string{{"b", "2"}}}),
	)
	both := normalizeDoc(t, doc, "SRR1", "SRR2")

	if n := len(both.Columns()); n > len(a.Columns())+len(b.Columns()) {
		t.Errorf("union has %d columns, more than %d + %d", n, len(a.Columns()), len(b.Columns()))
	}
}

func TestConsentPrivate(t *testing.T) {
	doc := packageSet(packageXML(pkgOpts{runs: []string{"SRR1"}, isPublic: "false"}))
	table := normalizeDoc(t, doc, "SRR1")
	if got := table.Get("SRR1", "consent"); got != "private" {
		t.Errorf("consent = %q, want private", got)
	}
}
