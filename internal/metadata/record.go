// Package metadata fetches SRA experiment packages for runs and normalizes
// them into a single flat table with a stable column set.
package metadata

import (
	"bytes"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/parser"
)

// Layout is the read layout of a run.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutSingle
	LayoutPaired
)

func (l Layout) String() string {
	switch l {
	case LayoutSingle:
		return "SINGLE"
	case LayoutPaired:
		return "PAIRED"
	default:
		return "UNKNOWN"
	}
}

// RunRecord is one run and the experiment package it belongs to. Package is
// a copy of the EXPERIMENT_PACKAGE element with RUN_SET narrowed to this run.
type RunRecord struct {
	Accession  string
	Experiment string
	Study      string
	BioProject string
	Sample     string
	BioSample  string
	Layout     Layout
	Platform   string
	Instrument string
	Package    *parser.Node
}

// ParsePackages decodes an EXPERIMENT_PACKAGE_SET document and returns the
// records of the requested runs, keyed by accession. Runs present in the
// document but not requested are ignored; requested runs absent from it are
// simply missing from the map.
func ParsePackages(doc []byte, requested []string) (map[string]*RunRecord, error) {
	const op errors.Op = "metadata.ParsePackages"

	root, err := parser.Decode(bytes.NewReader(doc))
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	if root.Name != "EXPERIMENT_PACKAGE_SET" {
		return nil, errors.Errorf(op, errors.KindParse, "unexpected root element %s", root.Name)
	}

	want := make(map[string]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}

	records := make(map[string]*RunRecord)
	for _, pkg := range root.ChildrenNamed("EXPERIMENT_PACKAGE") {
		for _, run := range pkg.Find("RUN_SET").ChildrenNamed("RUN") {
			acc := run.AttrValue("accession")
			if acc == "" {
				acc = run.TextAt("IDENTIFIERS", "PRIMARY_ID")
			}
			if !want[acc] {
				continue
			}
			if _, dup := records[acc]; dup {
				continue
			}
			records[acc] = newRunRecord(acc, narrowRunSet(pkg, run))
		}
	}
	return records, nil
}

// narrowRunSet copies pkg with RUN_SET reduced to the single given run.
func narrowRunSet(pkg, run *parser.Node) *parser.Node {
	out := &parser.Node{Name: pkg.Name, Attrs: pkg.Attrs, Text: pkg.Text}
	for _, c := range pkg.Children {
		if c.Name != "RUN_SET" {
			out.Children = append(out.Children, c.Clone())
			continue
		}
		set := &parser.Node{Name: c.Name, Attrs: c.Attrs}
		set.Children = []*parser.Node{run.Clone()}
		out.Children = append(out.Children, set)
	}
	return out
}

func newRunRecord(acc string, pkg *parser.Node) *RunRecord {
	exp := pkg.Child("EXPERIMENT")
	rec := &RunRecord{
		Accession: acc,
		Package:   pkg,
	}

	rec.Experiment = firstNonEmpty(exp.AttrValue("accession"), exp.TextAt("IDENTIFIERS", "PRIMARY_ID"))
	rec.Study = firstNonEmpty(
		pkg.Find("STUDY").AttrValue("accession"),
		exp.Find("STUDY_REF").AttrValue("accession"),
		exp.TextAt("STUDY_REF", "IDENTIFIERS", "PRIMARY_ID"),
	)
	rec.BioProject = firstNonEmpty(
		externalID(exp.Find("STUDY_REF", "IDENTIFIERS"), "BioProject"),
		externalID(pkg.Find("STUDY", "IDENTIFIERS"), "BioProject"),
	)

	member := pkg.Find("Pool", "Member")
	rec.Sample = firstNonEmpty(pkg.Find("SAMPLE").AttrValue("accession"), member.AttrValue("accession"))
	rec.BioSample = firstNonEmpty(
		externalID(member.Find("IDENTIFIERS"), "BioSample"),
		externalID(pkg.Find("SAMPLE", "IDENTIFIERS"), "BioSample"),
	)

	if layout := exp.Find("DESIGN", "LIBRARY_DESCRIPTOR", "LIBRARY_LAYOUT").FirstChild(); layout != nil {
		switch strings.ToUpper(layout.Name) {
		case "SINGLE":
			rec.Layout = LayoutSingle
		case "PAIRED":
			rec.Layout = LayoutPaired
		}
	}
	if platform := exp.Find("PLATFORM").FirstChild(); platform != nil {
		rec.Platform = platform.Name
		rec.Instrument = platform.TextAt("INSTRUMENT_MODEL")
	}
	return rec
}

// externalID returns the EXTERNAL_ID text under ids with the given namespace.
func externalID(ids *parser.Node, namespace string) string {
	for _, ext := range ids.ChildrenNamed("EXTERNAL_ID") {
		if strings.EqualFold(ext.AttrValue("namespace"), namespace) {
			return ext.Text
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
