package accession

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
)

// Column headers of the ID-list format.
const (
	HeaderID      = "ID"
	HeaderMessage = "error_message"
)

// idHeaders are accepted spellings of the first column header.
var idHeaders = map[string]bool{
	"id":        true,
	"sample-id": true,
	"sampleid":  true,
	"sample id": true,
	"run-id":    true,
}

// Entry is one line of an ID list. Message is empty for plain input lists and
// carries the failure cause in failed-ID lists.
type Entry struct {
	ID      string
	Message string
}

// ReadList reads a tab-separated ID list. The header row is optional; when
// present, an error_message column is picked up. Lines starting with '#' and
// blank lines are skipped. Entries are returned in file order, unvalidated.
func ReadList(r io.Reader) ([]Entry, error) {
	const op errors.Op = "accession.ReadList"

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		entries    []Entry
		msgCol     = -1
		headerSeen bool
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(op, errors.KindParse, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if !headerSeen {
			headerSeen = true
			if idHeaders[strings.ToLower(strings.TrimSpace(rec[0]))] {
				for i, h := range rec {
					if strings.EqualFold(strings.TrimSpace(h), HeaderMessage) {
						msgCol = i
					}
				}
				continue
			}
		}
		e := Entry{ID: strings.TrimSpace(rec[0])}
		if msgCol > 0 && msgCol < len(rec) {
			e.Message = rec[msgCol]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteList writes entries with a header row. The error_message column is
// written when withMessages is set, even if entries is empty.
func WriteList(w io.Writer, entries []Entry, withMessages bool) error {
	const op errors.Op = "accession.WriteList"

	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := []string{HeaderID}
	if withMessages {
		header = append(header, HeaderMessage)
	}
	if err := cw.Write(header); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	for _, e := range entries {
		rec := []string{e.ID}
		if withMessages {
			rec = append(rec, flattenMessage(e.Message))
		}
		if err := cw.Write(rec); err != nil {
			return errors.E(op, errors.KindIO, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	return nil
}

// IDs returns the ID of each entry.
func IDs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// flattenMessage keeps multi-line tool diagnostics on one row.
func flattenMessage(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.TrimSpace(s)
}
