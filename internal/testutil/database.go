package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nishad/srafetch/internal/database"
	"github.com/nishad/srafetch/internal/failures"
)

// TestDB creates a temporary database for testing.
// It returns the database and a cleanup function.
func TestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	dir, dirCleanup := TempDir(t)
	db, err := database.Initialize(filepath.Join(dir, "test.db"))
	if err != nil {
		dirCleanup()
		t.Fatalf("failed to create test database: %v", err)
	}

	return db, func() {
		db.Close()
		dirCleanup()
	}
}

// TestDBWithFixtures creates a test database holding RunTable, one metadata
// failure for FailedRun and a converted single-end bundle for SRR0000001.
func TestDBWithFixtures(t *testing.T) (*database.DB, func()) {
	t.Helper()

	db, cleanup := TestDB(t)
	ctx := context.Background()

	if _, err := db.SaveTable(ctx, RunTable(t)); err != nil {
		cleanup()
		t.Fatalf("failed to store test runs: %v", err)
	}

	failed := failures.New()
	failed.Record(FailedRun, FailedMessage)
	if err := db.SaveFailures(ctx, database.StageMetadata, failed); err != nil {
		cleanup()
		t.Fatalf("failed to store test failures: %v", err)
	}

	if err := db.RecordSequence(ctx, database.Sequence{
		Accession: "SRR0000001",
		Layout:    "SINGLE",
		BundleDir: "/out/single",
		Files:     []string{"SRR0000001_00_L001_R1_001.fastq.gz"},
	}); err != nil {
		cleanup()
		t.Fatalf("failed to store test sequence: %v", err)
	}

	return db, cleanup
}
