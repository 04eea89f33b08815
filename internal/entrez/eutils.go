package entrez

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
)

// SearchResult is one page of esearch results.
type SearchResult struct {
	Count    int
	RetStart int
	IDs      []string
}

type esearchResponse struct {
	Error  string `json:"error"`
	Result struct {
		Count    string   `json:"count"`
		RetStart string   `json:"retstart"`
		IDList   []string `json:"idlist"`
		Error    string   `json:"ERROR"`
	} `json:"esearchresult"`
}

// Search runs esearch against db and returns one page of UIDs starting at retstart.
func (c *Client) Search(ctx context.Context, db, term string, retstart, retmax int) (*SearchResult, error) {
	const op errors.Op = "entrez.Search"

	params := url.Values{}
	params.Set("db", db)
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retstart", strconv.Itoa(retstart))
	params.Set("retmax", strconv.Itoa(retmax))

	body, err := c.call(ctx, "esearch", params)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.E(op, errors.KindParse, err, "decode esearch response")
	}
	if resp.Error != "" {
		return nil, errors.E(op, errors.KindRemote, resp.Error)
	}
	if resp.Result.Error != "" {
		return nil, errors.E(op, errors.KindRemote, resp.Result.Error)
	}

	count, err := strconv.Atoi(resp.Result.Count)
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err, "esearch count")
	}
	start, _ := strconv.Atoi(resp.Result.RetStart)

	return &SearchResult{Count: count, RetStart: start, IDs: resp.Result.IDList}, nil
}

type elinkResponse struct {
	Error    string `json:"ERROR"`
	LinkSets []struct {
		DBFrom     string `json:"dbfrom"`
		LinkSetDBs []struct {
			DBTo     string   `json:"dbto"`
			LinkName string   `json:"linkname"`
			Links    []string `json:"links"`
		} `json:"linksetdbs"`
	} `json:"linksets"`
}

// Link returns the UIDs in db linked from the given dbFrom UIDs, de-duplicated
// and sorted.
func (c *Client) Link(ctx context.Context, dbFrom, db string, ids []string) ([]string, error) {
	const op errors.Op = "entrez.Link"

	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("dbfrom", dbFrom)
	params.Set("db", db)
	params.Set("retmode", "json")
	params.Set("id", strings.Join(ids, ","))

	body, err := c.call(ctx, "elink", params)
	if err != nil {
		return nil, err
	}

	var resp elinkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.E(op, errors.KindParse, err, "decode elink response")
	}
	if resp.Error != "" {
		return nil, errors.E(op, errors.KindRemote, resp.Error)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, ls := range resp.LinkSets {
		for _, ldb := range ls.LinkSetDBs {
			if ldb.DBTo != db {
				continue
			}
			for _, l := range ldb.Links {
				if _, ok := seen[l]; ok {
					continue
				}
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

type esummaryResponse struct {
	Error  string                     `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

type sraSummary struct {
	UID  string `json:"uid"`
	Runs string `json:"runs"`
}

type runsFragment struct {
	Runs []struct {
		Acc string `xml:"acc,attr"`
	} `xml:"Run"`
}

// RunAccessions returns the run accessions contained in the given SRA UIDs,
// de-duplicated and sorted. The esummary "runs" field is an XML fragment of
// <Run acc="..."/> elements.
func (c *Client) RunAccessions(ctx context.Context, uids []string) ([]string, error) {
	const op errors.Op = "entrez.RunAccessions"

	if len(uids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("db", "sra")
	params.Set("retmode", "json")
	params.Set("id", strings.Join(uids, ","))

	body, err := c.call(ctx, "esummary", params)
	if err != nil {
		return nil, err
	}

	var resp esummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.E(op, errors.KindParse, err, "decode esummary response")
	}
	if resp.Error != "" {
		return nil, errors.E(op, errors.KindRemote, resp.Error)
	}

	seen := make(map[string]struct{})
	var out []string
	for key, raw := range resp.Result {
		if key == "uids" {
			continue
		}
		var sum sraSummary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, errors.E(op, errors.KindParse, err, "decode summary "+key)
		}
		var frag runsFragment
		if err := xml.Unmarshal([]byte("<Runs>"+sum.Runs+"</Runs>"), &frag); err != nil {
			return nil, errors.E(op, errors.KindParse, err, "decode runs of "+key)
		}
		for _, r := range frag.Runs {
			if r.Acc == "" {
				continue
			}
			if _, ok := seen[r.Acc]; ok {
				continue
			}
			seen[r.Acc] = struct{}{}
			out = append(out, r.Acc)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FetchPackages runs efetch on the SRA database for the given run accessions
// and returns the raw EXPERIMENT_PACKAGE_SET document.
func (c *Client) FetchPackages(ctx context.Context, runIDs []string) ([]byte, error) {
	const op errors.Op = "entrez.FetchPackages"

	params := url.Values{}
	params.Set("db", "sra")
	params.Set("rettype", "xml")
	params.Set("retmode", "text")
	params.Set("id", strings.Join(runIDs, ","))

	body, err := c.call(ctx, "efetch", params)
	if err != nil {
		return nil, err
	}
	if msg, ok := errorElement(body); ok {
		return nil, errors.E(op, errors.KindRemote, strings.TrimSpace(msg))
	}
	return body, nil
}
