package resolver

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/entrez"
)

type fakeAPI struct {
	searches []string
	links    int
	count    int
	uids     []string
}

func (f *fakeAPI) Search(_ context.Context, db, term string, retstart, retmax int) (*entrez.SearchResult, error) {
	f.searches = append(f.searches, db+":"+term)
	end := retstart + retmax
	if end > len(f.uids) {
		end = len(f.uids)
	}
	var page []string
	if retstart < end {
		page = f.uids[retstart:end]
	}
	return &entrez.SearchResult{Count: len(f.uids), RetStart: retstart, IDs: page}, nil
}

func (f *fakeAPI) Link(_ context.Context, dbFrom, db string, ids []string) ([]string, error) {
	f.links++
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "sra" + id
	}
	return out, nil
}

func (f *fakeAPI) RunAccessions(_ context.Context, uids []string) ([]string, error) {
	out := make([]string, len(uids))
	for i, uid := range uids {
		out[i] = "SRR" + uid[len(uid)-1:]
	}
	return out, nil
}

func TestEntrezLookupPagesSRA(t *testing.T) {
	api := &fakeAPI{uids: []string{"1", "2", "3"}}
	l := NewEntrezLookup(api, 2)
	q := QueryFor(accession.MustParse("SRP1"))

	first, err := l.RunPage(context.Background(), q, 0)
	if err != nil {
		t.Fatalf("RunPage: %v", err)
	}
	want := Page{RunIDs: []string{"SRR1", "SRR2"}, Next: 2}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("first page mismatch (-want +got):\n%s", diff)
	}

	second, err := l.RunPage(context.Background(), q, first.Next)
	if err != nil {
		t.Fatalf("RunPage: %v", err)
	}
	want = Page{RunIDs: []string{"SRR3"}, Next: 3, Done: true}
	if diff := cmp.Diff(want, second); diff != "" {
		t.Errorf("second page mismatch (-want +got):\n%s", diff)
	}
	if api.links != 0 {
		t.Errorf("sra query should not link, links = %d", api.links)
	}
}

func TestEntrezLookupLinksProjects(t *testing.T) {
	api := &fakeAPI{uids: []string{"7"}}
	l := NewEntrezLookup(api, 0)

	page, err := l.RunPage(context.Background(), QueryFor(accession.MustParse("PRJNA42")), 0)
	if err != nil {
		t.Fatalf("RunPage: %v", err)
	}
	if api.searches[0] != "bioproject:PRJNA42" {
		t.Errorf("search = %s", api.searches[0])
	}
	if api.links != 1 {
		t.Errorf("links = %d, want 1", api.links)
	}
	if !page.Done || len(page.RunIDs) != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestEntrezLookupEmptySearch(t *testing.T) {
	l := NewEntrezLookup(&fakeAPI{}, 10)
	page, err := l.RunPage(context.Background(), BioSampleQuery("nothing"), 0)
	if err != nil {
		t.Fatalf("RunPage: %v", err)
	}
	if !page.Done || len(page.RunIDs) != 0 {
		t.Errorf("page = %+v, want done and empty", page)
	}
}
