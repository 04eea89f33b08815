package accession

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nishad/srafetch/internal/errors"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{"SRR000001", KindRun},
		{"ERR1234567", KindRun},
		{"DRR000123", KindRun},
		{"SRX123456", KindExperiment},
		{"ERX000001", KindExperiment},
		{"SRS012345", KindSample},
		{"SAMN02981352", KindSample},
		{"SAMEA1234567", KindSample},
		{"SRP000001", KindStudy},
		{"DRP004150", KindStudy},
		{"PRJNA734376", KindProject},
		{"PRJEB12345", KindProject},
		{"  SRR000002\t", KindRun},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if id.Kind() != tt.kind {
				t.Errorf("Parse(%q).Kind() = %v, want %v", tt.in, id.Kind(), tt.kind)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "SRR", "XRR123", "srr123", "SRR12a", "PRJNA", "SAMX123", "FAKEID1"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Parse(%q) should fail", in)
			}
			if !errors.IsKind(err, errors.KindValidation) {
				t.Errorf("expected validation kind, got %v", errors.GetKind(err))
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError in chain, got %T", err)
			}
		})
	}
}

func TestParseAllNamesOffendingID(t *testing.T) {
	_, err := ParseAll([]string{"SRR000001", "PRJNA1", "BAD-ID", "SRR000002"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.ID != "BAD-ID" {
		t.Errorf("expected offending ID BAD-ID, got %q", verr.ID)
	}
}

func TestUniqueSortsAndDedupes(t *testing.T) {
	ids := []ID{MustParse("SRR3"), MustParse("SRR1"), MustParse("SRR3"), MustParse("ERR2")}
	got := Strings(Unique(ids))
	want := []string{"ERR2", "SRR1", "SRR3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unique mismatch (-want +got):\n%s", diff)
	}
}

func TestKindDatabase(t *testing.T) {
	if KindProject.Database() != "bioproject" {
		t.Errorf("project kind should search bioproject")
	}
	for _, k := range []Kind{KindRun, KindExperiment, KindSample, KindStudy} {
		if k.Database() != "sra" {
			t.Errorf("%v should search sra", k)
		}
	}
}
