package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nishad/srafetch/internal/errors"
)

const samplePackage = `<?xml version="1.0" encoding="UTF-8"?>
<EXPERIMENT_PACKAGE_SET>
  <EXPERIMENT_PACKAGE>
    <EXPERIMENT accession="SRX1" alias="exp">
      <IDENTIFIERS><PRIMARY_ID>SRX1</PRIMARY_ID></IDENTIFIERS>
      <PLATFORM><ILLUMINA><INSTRUMENT_MODEL>NovaSeq 6000</INSTRUMENT_MODEL></ILLUMINA></PLATFORM>
    </EXPERIMENT>
    <RUN_SET>
      <RUN accession="SRR1" total_spots="10"/>
      <RUN accession="SRR2" total_spots="20"/>
    </RUN_SET>
  </EXPERIMENT_PACKAGE>
</EXPERIMENT_PACKAGE_SET>`

func TestDecode(t *testing.T) {
	root, err := Decode(strings.NewReader(samplePackage))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if root.Name != "EXPERIMENT_PACKAGE_SET" {
		t.Fatalf("root = %s", root.Name)
	}

	pkg := root.Child("EXPERIMENT_PACKAGE")
	if got := pkg.Find("EXPERIMENT").AttrValue("accession"); got != "SRX1" {
		t.Errorf("experiment accession = %q", got)
	}
	if got := pkg.TextAt("EXPERIMENT", "PLATFORM", "ILLUMINA", "INSTRUMENT_MODEL"); got != "NovaSeq 6000" {
		t.Errorf("instrument = %q", got)
	}
	if got := pkg.Find("EXPERIMENT", "PLATFORM").FirstChild().Name; got != "ILLUMINA" {
		t.Errorf("platform = %q", got)
	}

	var runs []string
	for _, r := range pkg.Find("RUN_SET").ChildrenNamed("RUN") {
		runs = append(runs, r.AttrValue("accession"))
	}
	if diff := cmp.Diff([]string{"SRR1", "SRR2"}, runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIndentedNesting(t *testing.T) {
	// Whitespace and text at every depth keeps several open elements
	// accumulating character data while new ones are pushed.
	var b strings.Builder
	const depth = 40
	for i := 0; i < depth; i++ {
		b.WriteString("<L>\n  text ")
	}
	b.WriteString("<LEAF>\n    value\n  </LEAF>")
	for i := 0; i < depth; i++ {
		b.WriteString("\n  tail</L>\n")
	}

	root, err := Decode(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	path := make([]string, depth-1)
	for i := range path {
		path[i] = "L"
	}
	if got := root.TextAt(append(path, "LEAF")...); got != "value" {
		t.Errorf("leaf text = %q, want value", got)
	}
	if got := root.Find(path...).Text; !strings.HasPrefix(got, "text") || !strings.HasSuffix(got, "tail") {
		t.Errorf("mixed text = %q", got)
	}
}

func TestFindOnMissingPath(t *testing.T) {
	root, err := Decode(strings.NewReader(samplePackage))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n := root.Find("NOPE", "EXPERIMENT"); n != nil {
		t.Errorf("Find = %v, want nil", n)
	}
	if got := root.TextAt("NOPE"); got != "" {
		t.Errorf("TextAt = %q, want empty", got)
	}
	var nilNode *Node
	if _, ok := nilNode.Attr("x"); ok {
		t.Error("nil node reported an attribute")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"truncated", "<A><B>text</B>"},
		{"whitespace only", "   \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			if !errors.IsKind(err, errors.KindParse) {
				t.Errorf("error = %v, want parse kind", err)
			}
		})
	}
}

func TestWalkPaths(t *testing.T) {
	root, err := Decode(strings.NewReader(`<A><B><C>x</C></B><D/></A>`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var paths []string
	root.Walk(func(path []string, n *Node) bool {
		paths = append(paths, strings.Join(path, "."))
		return n.Name != "B"
	})
	if diff := cmp.Diff([]string{"A", "A.B", "A.D"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestClone(t *testing.T) {
	root, err := Decode(strings.NewReader(`<A k="v"><B>x</B></A>`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	c := root.Clone()
	c.Children[0].Text = "changed"
	c.Attrs[0].Value = "changed"
	if root.TextAt("B") != "x" || root.AttrValue("k") != "v" {
		t.Error("Clone shares state with the original")
	}
}
