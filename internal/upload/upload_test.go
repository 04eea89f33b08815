package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/retry"
)

type fakeStore struct {
	buckets map[string]bool
	objects map[string]string // key -> local file
	failFor map[string]int    // key -> remaining failures
	kind    errors.Kind
	puts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		buckets: map[string]bool{},
		objects: map[string]string{},
		failFor: map[string]int{},
		kind:    errors.KindNetwork,
	}
}

func (f *fakeStore) EnsureBucket(_ context.Context, bucket string) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeStore) PutFile(_ context.Context, bucket, key, file string) error {
	f.puts++
	if f.failFor[key] > 0 {
		f.failFor[key]--
		return errors.E(errors.Op("fake.PutFile"), f.kind, fmt.Errorf("put %s failed", key))
	}
	f.objects[bucket+"/"+key] = file
	return nil
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "paired")
	for _, name := range []string{"MANIFEST", "metadata.yml", "SRR1_00_L001_R1_001.fastq.gz", "SRR1_00_L001_R2_001.fastq.gz"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestUploadDir(t *testing.T) {
	dir := writeBundle(t)
	store := newFakeStore()
	u := NewUploader(store, "runs", "/project-1/", retry.Policy{}, nil)

	keys, err := u.UploadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("UploadDir: %v", err)
	}

	want := []string{
		"project-1/paired/MANIFEST",
		"project-1/paired/SRR1_00_L001_R1_001.fastq.gz",
		"project-1/paired/SRR1_00_L001_R2_001.fastq.gz",
		"project-1/paired/metadata.yml",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if !store.buckets["runs"] {
		t.Error("bucket was not ensured")
	}
	if got := store.objects["runs/project-1/paired/MANIFEST"]; got != filepath.Join(dir, "MANIFEST") {
		t.Errorf("MANIFEST uploaded from %q", got)
	}
}

func TestUploadDirRetriesTransientErrors(t *testing.T) {
	dir := writeBundle(t)
	store := newFakeStore()
	store.failFor["paired/MANIFEST"] = 2
	u := NewUploader(store, "runs", "", retry.Policy{Retries: 2}, nil)

	keys, err := u.UploadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("UploadDir: %v", err)
	}
	if len(keys) != 4 {
		t.Errorf("uploaded %d keys, want 4", len(keys))
	}
	if store.puts != 6 {
		t.Errorf("puts = %d, want 6", store.puts)
	}
}

func TestUploadDirStopsOnConfigErrors(t *testing.T) {
	dir := writeBundle(t)
	store := newFakeStore()
	store.kind = errors.KindConfig
	store.failFor["paired/MANIFEST"] = 5
	u := NewUploader(store, "runs", "", retry.Policy{Retries: 3}, nil)

	keys, err := u.UploadDir(context.Background(), dir)
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("error = %v, want config kind", err)
	}
	if len(keys) != 0 || store.puts != 1 {
		t.Errorf("keys = %v, puts = %d; want no keys after one put", keys, store.puts)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a/SRR1_00_L001_R1_001.fastq.gz": "application/gzip",
		"a/metadata.yml":                 "application/yaml",
		"a/MANIFEST":                     "text/csv",
		"a/other.bin":                    "application/octet-stream",
	}
	for file, want := range tests {
		if got := contentType(file); got != want {
			t.Errorf("contentType(%q) = %q, want %q", file, got, want)
		}
	}
}

func TestNewS3StoreRequiresEndpoint(t *testing.T) {
	if _, err := NewS3Store(Config{}); !errors.IsKind(err, errors.KindConfig) {
		t.Errorf("error = %v, want config kind", err)
	}
	if _, err := NewS3Store(Config{Endpoint: "https://s3.example.org", AccessKeyID: "a", SecretAccessKey: "b"}); err != nil {
		t.Errorf("NewS3Store: %v", err)
	}
}
