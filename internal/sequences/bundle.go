package sequences

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/nishad/srafetch/internal/errors"
)

// PlaceholderID marks the empty entry written into a bundle no run landed in.
const PlaceholderID = "xxx"

// Bundle file names.
const (
	ManifestName = "MANIFEST"
	MetadataName = "metadata.yml"
)

// Direction of a read file in a manifest.
const (
	Forward = "forward"
	Reverse = "reverse"
)

// ManifestEntry maps one file of a bundle to its sample and read direction.
type ManifestEntry struct {
	SampleID  string
	Filename  string
	Direction string
}

// Bundle is a directory of gzip-compressed FASTQ files in Casava naming
// with a MANIFEST and a metadata.yml sidecar.
type Bundle struct {
	Dir     string
	Paired  bool
	Entries []ManifestEntry
}

// bundleMetadata is the layout-declaration sidecar.
type bundleMetadata struct {
	PhredOffset int `yaml:"phred-offset"`
}

// casavaName returns the Casava 1.8 file name for acc and read (1 or 2).
func casavaName(acc string, read int) string {
	return fmt.Sprintf("%s_00_L001_R%d_001.fastq.gz", acc, read)
}

func newBundle(dir string, paired bool) (*Bundle, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Bundle{Dir: dir, Paired: paired}, nil
}

// IsPlaceholder reports whether the bundle holds only the dummy entry.
func (b *Bundle) IsPlaceholder() bool {
	for _, e := range b.Entries {
		if e.SampleID != PlaceholderID {
			return false
		}
	}
	return len(b.Entries) > 0
}

// SampleIDs returns the distinct sample IDs in the bundle, sorted.
func (b *Bundle) SampleIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range b.Entries {
		if !seen[e.SampleID] {
			seen[e.SampleID] = true
			out = append(out, e.SampleID)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Bundle) add(acc string, files []string) {
	for i, f := range files {
		dir := Forward
		if i == 1 {
			dir = Reverse
		}
		b.Entries = append(b.Entries, ManifestEntry{SampleID: acc, Filename: f, Direction: dir})
	}
}

// addPlaceholder writes empty gzip members for the dummy ID.
func (b *Bundle) addPlaceholder() error {
	reads := 1
	if b.Paired {
		reads = 2
	}
	files := make([]string, 0, reads)
	for r := 1; r <= reads; r++ {
		name := casavaName(PlaceholderID, r)
		if err := writeEmptyGzip(filepath.Join(b.Dir, name)); err != nil {
			return err
		}
		files = append(files, name)
	}
	b.add(PlaceholderID, files)
	return nil
}

// finish sorts the entries and writes MANIFEST and metadata.yml.
func (b *Bundle) finish() error {
	const op errors.Op = "sequences.Bundle.finish"

	sort.SliceStable(b.Entries, func(i, j int) bool {
		if b.Entries[i].SampleID != b.Entries[j].SampleID {
			return b.Entries[i].SampleID < b.Entries[j].SampleID
		}
		return b.Entries[i].Filename < b.Entries[j].Filename
	})

	f, err := os.Create(filepath.Join(b.Dir, ManifestName))
	if err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	if err := writeManifest(f, b.Entries); err != nil {
		f.Close()
		return errors.E(op, errors.KindIO, err)
	}
	if err := f.Close(); err != nil {
		return errors.E(op, errors.KindIO, err)
	}

	meta, err := yaml.Marshal(bundleMetadata{PhredOffset: 33})
	if err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	if err := os.WriteFile(filepath.Join(b.Dir, MetadataName), meta, 0644); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	return nil
}

func writeManifest(w io.Writer, entries []ManifestEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sample-id", "filename", "direction"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.SampleID, e.Filename, e.Direction}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadManifest parses a MANIFEST file.
func ReadManifest(r io.Reader) ([]ManifestEntry, error) {
	const op errors.Op = "sequences.ReadManifest"

	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err)
	}
	if len(records) == 0 {
		return nil, errors.E(op, errors.KindParse, "empty manifest")
	}
	out := make([]ManifestEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != 3 {
			return nil, errors.Errorf(op, errors.KindParse, "manifest line has %d fields", len(rec))
		}
		out = append(out, ManifestEntry{SampleID: rec[0], Filename: rec[1], Direction: rec[2]})
	}
	return out, nil
}

// compressInto gzips src to dst and removes src.
func compressInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	errors.IgnoreError(os.Remove(src), "removing converted FASTQ")
	return nil
}

func writeEmptyGzip(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
