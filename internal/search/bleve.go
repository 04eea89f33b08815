// Package search keeps a full-text index of normalized run metadata so stored
// runs can be found by any attribute without a new NCBI round trip.
package search

import (
	"fmt"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/metadata"
)

// IDField holds the run accession in every indexed document.
const IDField = "run_accession"

// keywordFields are matched verbatim. Everything else is analyzed text.
var keywordFields = map[string]bool{
	IDField:            true,
	"experiment_id":    true,
	"study_id":         true,
	"bioproject_id":    true,
	"sample_id":        true,
	"biosample_id":     true,
	"platform":         true,
	"instrument":       true,
	"library_layout":   true,
	"library_strategy": true,
	"library_source":   true,
	"consent":          true,
	"tax_id":           true,
}

// facetFields are summarized on every search.
var facetFields = []string{"platform", "library_strategy", "library_layout", "library_source"}

// Index wraps a Bleve index of run documents.
type Index struct {
	index bleve.Index
	path  string
}

// Open opens the index at path, creating it when it does not exist yet.
func Open(path string) (*Index, error) {
	const op errors.Op = "search.Open"

	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, runMapping())
		if err != nil {
			return nil, errors.E(op, errors.KindSearch, "create index", err)
		}
	} else if err != nil {
		return nil, errors.E(op, errors.KindSearch, "open index", err)
	}
	return &Index{index: index, path: path}, nil
}

// NewMemOnly returns an index that lives only in memory.
func NewMemOnly() (*Index, error) {
	index, err := bleve.NewMemOnly(runMapping())
	if err != nil {
		return nil, errors.E(errors.Op("search.NewMemOnly"), errors.KindSearch, err)
	}
	return &Index{index: index}, nil
}

func runMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "standard"

	docMapping := bleve.NewDocumentMapping()
	for field := range keywordFields {
		docMapping.AddFieldMappingsAt(field, keywordFieldMapping())
	}
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func keywordFieldMapping() *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = "keyword"
	fm.Store = true
	fm.IncludeInAll = true
	return fm
}

// IndexTable adds or replaces one document per row of t and returns the
// number of documents written. Missing cells are not indexed.
func (ix *Index) IndexTable(t *metadata.Table) (int, error) {
	const op errors.Op = "search.IndexTable"

	if t == nil || t.Len() == 0 {
		return 0, nil
	}
	batch := ix.index.NewBatch()
	for _, row := range t.Rows() {
		doc := make(map[string]interface{}, len(row.Values)+1)
		for k, v := range row.Values {
			if v == "" || v == metadata.Missing {
				continue
			}
			doc[k] = v
		}
		doc[IDField] = row.ID
		if err := batch.Index(row.ID, doc); err != nil {
			return 0, errors.E(op, errors.KindSearch, fmt.Sprintf("add %s to batch", row.ID), err)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return 0, errors.E(op, errors.KindSearch, err)
	}
	return t.Len(), nil
}

// Request describes a search. An empty Query with no Filters matches every
// document.
type Request struct {
	Query   string
	Filters map[string]string
	Fuzzy   bool
	Limit   int
	Offset  int
}

// Hit is one matching run.
type Hit struct {
	ID     string            `json:"id"`
	Score  float64           `json:"score"`
	Fields map[string]string `json:"fields"`
}

// FacetTerm is one value of a faceted field and its document count.
type FacetTerm struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Result is the outcome of a search.
type Result struct {
	Total  uint64                 `json:"total"`
	Hits   []Hit                  `json:"hits"`
	Facets map[string][]FacetTerm `json:"facets,omitempty"`
	Took   time.Duration          `json:"took"`
}

// Search runs req against the index.
func (ix *Index) Search(req Request) (*Result, error) {
	const op errors.Op = "search.Search"

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	sr := bleve.NewSearchRequestOptions(buildQuery(req), limit, req.Offset, false)
	sr.Fields = []string{"*"}
	sr.SortBy([]string{"-_score", IDField})
	for _, f := range facetFields {
		sr.AddFacet(f, bleve.NewFacetRequest(f, 10))
	}

	res, err := ix.index.Search(sr)
	if err != nil {
		return nil, errors.E(op, errors.KindSearch, err)
	}

	out := &Result{Total: res.Total, Took: res.Took, Facets: make(map[string][]FacetTerm)}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score, Fields: make(map[string]string, len(h.Fields))}
		for k, v := range h.Fields {
			hit.Fields[k] = stringify(v)
		}
		out.Hits = append(out.Hits, hit)
	}
	for name, fr := range res.Facets {
		if fr.Terms == nil {
			continue
		}
		for _, tf := range fr.Terms.Terms() {
			out.Facets[name] = append(out.Facets[name], FacetTerm{Term: tf.Term, Count: tf.Count})
		}
	}
	return out, nil
}

func buildQuery(req Request) query.Query {
	var queries []query.Query

	if req.Query != "" {
		if req.Fuzzy {
			fq := bleve.NewFuzzyQuery(req.Query)
			fq.Fuzziness = 1
			queries = append(queries, fq)
		} else {
			queries = append(queries, bleve.NewQueryStringQuery(req.Query))
		}
	}

	fields := make([]string, 0, len(req.Filters))
	for f := range req.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value := req.Filters[field]
		if keywordFields[field] {
			tq := bleve.NewTermQuery(value)
			tq.SetField(field)
			queries = append(queries, tq)
			continue
		}
		pq := bleve.NewMatchPhraseQuery(value)
		pq.SetField(field)
		queries = append(queries, pq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []interface{}:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return fmt.Sprint(parts)
	default:
		return fmt.Sprint(x)
	}
}

// Delete removes a run from the index.
func (ix *Index) Delete(id string) error {
	if err := ix.index.Delete(id); err != nil {
		return errors.E(errors.Op("search.Delete"), errors.KindSearch, err)
	}
	return nil
}

// DocCount returns the number of indexed runs.
func (ix *Index) DocCount() (uint64, error) {
	return ix.index.DocCount()
}

// Path returns the on-disk location, empty for memory-only indexes.
func (ix *Index) Path() string { return ix.path }

// Close closes the Bleve index
func (ix *Index) Close() error {
	return ix.index.Close()
}
