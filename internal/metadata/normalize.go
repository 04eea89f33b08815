package metadata

import (
	"strconv"
	"strings"

	"github.com/nishad/srafetch/internal/parser"
)

// Missing fills cells for which a run has no value.
const Missing = "NA"

// attrPrefix marks a TAG column renamed away from a canonical column name.
const attrPrefix = "attr."

// valueSeparator joins repeated values that land in the same column.
const valueSeparator = "; "

// canonical maps a fixed column name to the document paths it replaces.
// derive, when set, computes the value from the record and takes precedence
// over the paths. Every listed path is consumed whether or not it supplied the
// value, so a field never appears twice under different names.
type canonical struct {
	name   string
	paths  []string
	derive func(*RunRecord, map[string][]string) string
}

var canonicalColumns = []canonical{
	{name: "library_layout", derive: func(r *RunRecord, _ map[string][]string) string {
		if r.Layout == LayoutUnknown {
			return ""
		}
		return r.Layout.String()
	}},
	{name: "platform", derive: func(r *RunRecord, _ map[string][]string) string { return r.Platform }},
	{name: "instrument", paths: []string{"EXPERIMENT.PLATFORM.*.INSTRUMENT_MODEL"},
		derive: func(r *RunRecord, _ map[string][]string) string { return r.Instrument }},
	{name: "organism", paths: []string{"Pool.Member.organism", "SAMPLE.SAMPLE_NAME.SCIENTIFIC_NAME"}},
	{name: "tax_id", paths: []string{"Pool.Member.tax_id", "SAMPLE.SAMPLE_NAME.TAXON_ID"}},
	{name: "bases", paths: []string{"RUN_SET.RUN.total_bases", "Pool.Member.bases"}},
	{name: "spots", paths: []string{"RUN_SET.RUN.total_spots", "Pool.Member.spots"}},
	{name: "bytes", paths: []string{"RUN_SET.RUN.size"}},
	{name: "avg_spot_len", derive: averageSpotLength},
	{name: "library_strategy", paths: []string{"EXPERIMENT.DESIGN.LIBRARY_DESCRIPTOR.LIBRARY_STRATEGY"}},
	{name: "library_source", paths: []string{"EXPERIMENT.DESIGN.LIBRARY_DESCRIPTOR.LIBRARY_SOURCE"}},
	{name: "library_selection", paths: []string{"EXPERIMENT.DESIGN.LIBRARY_DESCRIPTOR.LIBRARY_SELECTION"}},
	{name: "library_name", paths: []string{"EXPERIMENT.DESIGN.LIBRARY_DESCRIPTOR.LIBRARY_NAME"}},
	{name: "experiment_id", paths: []string{"EXPERIMENT.accession", "EXPERIMENT.IDENTIFIERS.PRIMARY_ID"},
		derive: func(r *RunRecord, _ map[string][]string) string { return r.Experiment }},
	{name: "study_id", paths: []string{"STUDY.accession", "STUDY.IDENTIFIERS.PRIMARY_ID", "EXPERIMENT.STUDY_REF.accession", "EXPERIMENT.STUDY_REF.IDENTIFIERS.PRIMARY_ID"},
		derive: func(r *RunRecord, _ map[string][]string) string { return r.Study }},
	{name: "bioproject_id", derive: func(r *RunRecord, _ map[string][]string) string { return r.BioProject }},
	{name: "sample_id", paths: []string{"SAMPLE.accession", "Pool.Member.accession", "SAMPLE.IDENTIFIERS.PRIMARY_ID"},
		derive: func(r *RunRecord, _ map[string][]string) string { return r.Sample }},
	{name: "biosample_id", derive: func(r *RunRecord, _ map[string][]string) string { return r.BioSample }},
	{name: "sample_name", paths: []string{"Pool.Member.sample_name"}},
	{name: "sample_title", paths: []string{"Pool.Member.sample_title", "SAMPLE.TITLE"}},
	{name: "center_name", paths: []string{"SUBMISSION.center_name"}},
	{name: "consent", paths: []string{"RUN_SET.RUN.is_public"}, derive: consent},
}

// CanonicalColumns returns the fixed column names in table order.
func CanonicalColumns() []string {
	out := make([]string, len(canonicalColumns))
	for i, c := range canonicalColumns {
		out[i] = c.name
	}
	return out
}

var canonicalIndex = func() map[string]int {
	m := make(map[string]int, len(canonicalColumns))
	for i, c := range canonicalColumns {
		m[c.name] = i
	}
	return m
}()

// droppedPaths duplicate the row key.
var droppedPaths = map[string]bool{
	"RUN_SET.RUN.accession":              true,
	"RUN_SET.RUN.IDENTIFIERS.PRIMARY_ID": true,
}

func averageSpotLength(_ *RunRecord, values map[string][]string) string {
	bases := firstValue(values, "RUN_SET.RUN.total_bases", "Pool.Member.bases")
	spots := firstValue(values, "RUN_SET.RUN.total_spots", "Pool.Member.spots")
	b, err1 := strconv.ParseInt(bases, 10, 64)
	s, err2 := strconv.ParseInt(spots, 10, 64)
	if err1 != nil || err2 != nil || s <= 0 {
		return ""
	}
	return strconv.FormatInt(b/s, 10)
}

func consent(_ *RunRecord, values map[string][]string) string {
	switch firstValue(values, "RUN_SET.RUN.is_public") {
	case "true":
		return "public"
	case "":
		return ""
	default:
		return "private"
	}
}

// joinedValue returns all values of the first pattern that matches any key.
func joinedValue(c *collector, patterns ...string) string {
	for _, p := range patterns {
		var vals []string
		for _, key := range c.match(p) {
			vals = appendUnique(vals, c.values[key]...)
		}
		if len(vals) > 0 {
			return strings.Join(vals, valueSeparator)
		}
	}
	return ""
}

func firstValue(values map[string][]string, paths ...string) string {
	for _, p := range paths {
		if v := values[p]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Normalize flattens records into a table. Column names are the element path
// below EXPERIMENT_PACKAGE joined by '.', with attributes as path.attr.
// *_ATTRIBUTES blocks contribute one column per TAG; a TAG named like a
// canonical column goes to attr.<TAG> instead. Repeated values landing
// in one column are joined with "; " in document order, exact repeats
// dropped. Known fields are renamed to fixed canonical columns.
//
// Records sharing an accession are combined as by Combine.
func Normalize(records []*RunRecord) (*Table, error) {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, normalizeRecord(rec))
	}
	return combineRows(rows)
}

func normalizeRecord(rec *RunRecord) Row {
	paths := newCollector()
	tags := newCollector()
	flatten(rec.Package, paths, tags)

	row := Row{ID: rec.Accession, Values: make(map[string]string)}
	for _, c := range canonicalColumns {
		var v string
		if c.derive != nil {
			v = c.derive(rec, paths.values)
		}
		if v == "" {
			v = joinedValue(paths, c.paths...)
		}
		if v != "" {
			row.Values[c.name] = v
		}
	}
	for _, c := range canonicalColumns {
		for _, p := range c.paths {
			for _, key := range paths.match(p) {
				paths.remove(key)
			}
		}
	}

	for _, key := range paths.order {
		if droppedPaths[key] {
			continue
		}
		row.Values[key] = strings.Join(paths.values[key], valueSeparator)
	}
	for _, tag := range tags.order {
		vals := tags.values[tag]
		key := tag
		if _, ok := canonicalIndex[tag]; ok {
			key = attrPrefix + tag
		}
		if existing, ok := row.Values[key]; ok {
			vals = appendUnique([]string{existing}, vals...)
		}
		row.Values[key] = strings.Join(vals, valueSeparator)
	}
	return row
}

// flatten walks pkg below its root, sending leaves to paths and
// *_ATTRIBUTE TAG/VALUE pairs to tags.
func flatten(pkg *parser.Node, paths, tags *collector) {
	if pkg == nil {
		return
	}
	for _, child := range pkg.Children {
		child.Walk(func(path []string, n *parser.Node) bool {
			if isAttributeBlock(n) {
				for _, attr := range n.Children {
					tag := strings.TrimSpace(attr.TextAt("TAG"))
					if tag == "" {
						continue
					}
					tags.add(tag, attr.TextAt("VALUE"))
				}
				return false
			}

			key := strings.Join(path, ".")
			for _, a := range n.Attrs {
				paths.add(key+"."+a.Name, a.Value)
			}
			if n.Text != "" {
				paths.add(key, n.Text)
			}
			return true
		})
	}
}

// isAttributeBlock reports whether n is a SAMPLE_ATTRIBUTES style element,
// a list of *_ATTRIBUTE children holding TAG/VALUE pairs.
func isAttributeBlock(n *parser.Node) bool {
	if !strings.HasSuffix(n.Name, "_ATTRIBUTES") || len(n.Children) == 0 {
		return false
	}
	item := strings.TrimSuffix(n.Name, "S")
	for _, c := range n.Children {
		if c.Name != item || c.Child("TAG") == nil {
			return false
		}
	}
	return true
}

// collector accumulates the values of each key in first-seen order.
type collector struct {
	order  []string
	values map[string][]string
}

func newCollector() *collector {
	return &collector{values: make(map[string][]string)}
}

func (c *collector) add(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	vals, seen := c.values[key]
	if !seen {
		c.order = append(c.order, key)
	}
	c.values[key] = appendUnique(vals, value)
}

// match returns the keys matching pattern, where a "*" segment matches any
// single path segment.
func (c *collector) match(pattern string) []string {
	if !strings.Contains(pattern, "*") {
		if _, ok := c.values[pattern]; ok {
			return []string{pattern}
		}
		return nil
	}
	want := strings.Split(pattern, ".")
	var out []string
	for _, key := range c.order {
		got := strings.Split(key, ".")
		if len(got) != len(want) {
			continue
		}
		ok := true
		for i := range want {
			if want[i] != "*" && want[i] != got[i] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, key)
		}
	}
	return out
}

func (c *collector) remove(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func appendUnique(vals []string, more ...string) []string {
	for _, m := range more {
		dup := false
		for _, v := range vals {
			if v == m {
				dup = true
				break
			}
		}
		if !dup {
			vals = append(vals, m)
		}
	}
	return vals
}
