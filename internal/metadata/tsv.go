package metadata

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/nishad/srafetch/internal/accession"
	"github.com/nishad/srafetch/internal/errors"
)

var cellCleaner = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// WriteTSV writes the table as tab-separated values. The first header is ID,
// followed by Columns().
func (t *Table) WriteTSV(w io.Writer) error {
	const op errors.Op = "metadata.WriteTSV"

	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := append([]string{accession.HeaderID}, t.columns...)
	if err := cw.Write(header); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	record := make([]string, len(header))
	for _, r := range t.rows {
		record[0] = r.ID
		for i, c := range t.columns {
			v, ok := r.Values[c]
			if !ok || v == "" {
				v = Missing
			}
			record[i+1] = cellCleaner.Replace(v)
		}
		if err := cw.Write(record); err != nil {
			return errors.E(op, errors.KindIO, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.E(op, errors.KindIO, err)
	}
	return nil
}

// ReadTSV reads a table written by WriteTSV. Missing and empty cells are
// treated as absent.
func ReadTSV(r io.Reader) (*Table, error) {
	const op errors.Op = "metadata.ReadTSV"

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return combineRows(nil)
	}
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err)
	}
	if len(header) == 0 || !strings.EqualFold(strings.TrimSpace(header[0]), accession.HeaderID) {
		return nil, errors.E(op, errors.KindParse, "first column must be "+accession.HeaderID)
	}

	var rows []Row
	seen := make(map[string]bool)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(op, errors.KindParse, err)
		}
		id := strings.TrimSpace(record[0])
		if id == "" {
			continue
		}
		if seen[id] {
			return nil, errors.Errorf(op, errors.KindParse, "duplicate run %s", id)
		}
		seen[id] = true

		row := Row{ID: id, Values: make(map[string]string)}
		for i := 1; i < len(record) && i < len(header); i++ {
			if !isMissing(record[i]) {
				row.Values[header[i]] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return combineRows(rows)
}
