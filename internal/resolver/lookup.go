package resolver

import (
	"context"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/entrez"
)

// DefaultPageSize is the number of search hits requested per page.
const DefaultPageSize = 500

// Query is a search term and the Entrez database it is run against.
type Query struct {
	Term string
	DB   string
}

// QueryFor returns the query that expands id.
func QueryFor(id accession.ID) Query {
	return Query{Term: id.String(), DB: id.Kind().Database()}
}

// BioSampleQuery returns a free-text query against the BioSample database.
func BioSampleQuery(text string) Query {
	return Query{Term: text, DB: "biosample"}
}

// Page is one page of run accessions returned by a Lookup.
type Page struct {
	RunIDs []string
	Next   int  // offset of the following page
	Done   bool // no pages remain
}

// Lookup pages through the runs matching a query.
type Lookup interface {
	RunPage(ctx context.Context, q Query, offset int) (Page, error)
}

// EntrezAPI is the subset of the E-utilities client used by EntrezLookup.
type EntrezAPI interface {
	Search(ctx context.Context, db, term string, retstart, retmax int) (*entrez.SearchResult, error)
	Link(ctx context.Context, dbFrom, db string, ids []string) ([]string, error)
	RunAccessions(ctx context.Context, uids []string) ([]string, error)
}

// EntrezLookup resolves queries with esearch, then elink into the SRA
// database for non-SRA sources, then esummary to list run accessions.
type EntrezLookup struct {
	api      EntrezAPI
	pageSize int
}

// NewEntrezLookup returns a lookup backed by api. pageSize <= 0 selects
// DefaultPageSize.
func NewEntrezLookup(api EntrezAPI, pageSize int) *EntrezLookup {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &EntrezLookup{api: api, pageSize: pageSize}
}

// RunPage implements Lookup.
func (l *EntrezLookup) RunPage(ctx context.Context, q Query, offset int) (Page, error) {
	res, err := l.api.Search(ctx, q.DB, q.Term, offset, l.pageSize)
	if err != nil {
		return Page{}, err
	}

	uids := res.IDs
	if q.DB != "sra" && len(uids) > 0 {
		uids, err = l.api.Link(ctx, q.DB, "sra", uids)
		if err != nil {
			return Page{}, err
		}
	}

	runs, err := l.api.RunAccessions(ctx, uids)
	if err != nil {
		return Page{}, err
	}

	next := offset + len(res.IDs)
	return Page{
		RunIDs: runs,
		Next:   next,
		Done:   len(res.IDs) == 0 || next >= res.Count,
	}, nil
}
