// Package accession parses and classifies NCBI SRA accession identifiers and
// reads and writes the ID-list format shared by input and failure artifacts.
package accession

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
)

// Kind is the granularity of an accession.
type Kind int

const (
	KindRun Kind = iota
	KindExperiment
	KindSample
	KindStudy
	KindProject
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindExperiment:
		return "experiment"
	case KindSample:
		return "sample"
	case KindStudy:
		return "study"
	case KindProject:
		return "project"
	default:
		return "unknown"
	}
}

// Database returns the Entrez database searched for this kind.
func (k Kind) Database() string {
	if k == KindProject {
		return "bioproject"
	}
	return "sra"
}

// patterns are checked in order; the first match decides the kind.
var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindRun, regexp.MustCompile(`^[SED]RR\d+$`)},
	{KindExperiment, regexp.MustCompile(`^[SED]RX\d+$`)},
	{KindSample, regexp.MustCompile(`^([SED]RS\d+|SAM[NED][A-Z]?\d+)$`)},
	{KindStudy, regexp.MustCompile(`^[SED]RP\d+$`)},
	{KindProject, regexp.MustCompile(`^PRJ[NED][A-Z]\d+$`)},
}

// ID is a validated accession. The zero value is not a valid ID.
type ID struct {
	value string
	kind  Kind
}

// String returns the accession text.
func (id ID) String() string { return id.value }

// Kind returns the accession kind.
func (id ID) Kind() Kind { return id.kind }

// IsRun reports whether the accession names a single run.
func (id ID) IsRun() bool { return id.kind == KindRun }

// ValidationError reports an accession that matches none of the known patterns.
type ValidationError struct {
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid accession %q: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid accession %q", e.ID)
}

// Detect returns the kind of s without constructing an ID.
func Detect(s string) (Kind, bool) {
	for _, p := range patterns {
		if p.re.MatchString(s) {
			return p.kind, true
		}
	}
	return 0, false
}

// Parse validates s (surrounding whitespace ignored) and returns its ID.
func Parse(s string) (ID, error) {
	const op errors.Op = "accession.Parse"

	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, errors.E(op, errors.KindValidation, &ValidationError{ID: s, Reason: "empty"})
	}
	kind, ok := Detect(s)
	if !ok {
		return ID{}, errors.E(op, errors.KindValidation,
			&ValidationError{ID: s, Reason: "does not match any run, experiment, sample, study or project pattern"})
	}
	return ID{value: s, kind: kind}, nil
}

// MustParse is like Parse but panics on invalid input. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseAll validates every string. The first invalid one aborts the whole call.
func ParseAll(values []string) ([]ID, error) {
	ids := make([]ID, 0, len(values))
	for _, v := range values {
		id, err := Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Unique returns ids de-duplicated and sorted by accession.
func Unique(ids []ID) []ID {
	seen := make(map[string]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id.value]; ok {
			continue
		}
		seen[id.value] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].value < out[j].value })
	return out
}

// Strings returns the accession text of each ID.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.value
	}
	return out
}
