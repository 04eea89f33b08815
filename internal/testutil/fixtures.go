package testutil

import (
	"testing"

	"github.com/nishad/srafetch/internal/metadata"
)

// Fixture failure recorded by TestDBWithFixtures.
const (
	FailedRun     = "SRR0000009"
	FailedMessage = "HTTP 500"
)

// RunRow returns a row with the canonical identity columns filled.
func RunRow(acc, organism, platform, layout string) metadata.Row {
	return metadata.Row{ID: acc, Values: map[string]string{
		"organism":       organism,
		"platform":       platform,
		"library_layout": layout,
		"study_id":       "SRP000001",
	}}
}

// RunTable returns three runs: two human gut samples (one paired) and a
// mouse soil sample.
func RunTable(t *testing.T) *metadata.Table {
	t.Helper()

	a := RunRow("SRR0000001", "Homo sapiens", "ILLUMINA", "SINGLE")
	a.Values["env_medium"] = "stool"
	b := RunRow("SRR0000002", "Homo sapiens", "ILLUMINA", "PAIRED")
	b.Values["env_medium"] = "stool; feces"
	c := RunRow("SRR0000003", "Mus musculus", "OXFORD_NANOPORE", "SINGLE")
	c.Values["env_medium"] = "soil"

	tbl, err := metadata.NewTable([]metadata.Row{a, b, c})
	if err != nil {
		t.Fatalf("failed to build run table: %v", err)
	}
	return tbl
}
