package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Feed column headers.
const (
	ColCode              = "Account Code"
	ColName              = "Account Name"
	ColCategory          = "Category"
	ColSubcategory       = "Subcategory"
	ColCashFlowRelevance = "Cash Flow Relevance"
	ColParentCode        = "Parent Code"
)

var requiredColumns = []string{ColCode, ColName, ColCategory}

// CSVParser parses feeds with a header row. Columns are matched by header
// name (case-insensitive), so their order and any extra columns do not matter.
type CSVParser struct{}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Parse reads a CSV feed.
func (p *CSVParser) Parse(r io.Reader) ([]model.ImportRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[strings.ToLower(c)]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[strings.ToLower(name)]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var records []model.ImportRecord
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if isBlank(rec) {
			continue
		}
		records = append(records, model.ImportRecord{
			Row:               row,
			Code:              field(rec, ColCode),
			Name:              field(rec, ColName),
			Category:          field(rec, ColCategory),
			Subcategory:       field(rec, ColSubcategory),
			CashFlowRelevance: field(rec, ColCashFlowRelevance),
			ParentCode:        field(rec, ColParentCode),
		})
	}
	return records, nil
}

// WriteCSV writes records with a header row. The output parses back to the
// same records.
func WriteCSV(w io.Writer, records []model.ImportRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{ColCode, ColName, ColCategory, ColSubcategory, ColCashFlowRelevance, ColParentCode}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, rec := range records {
		row := []string{rec.Code, rec.Name, rec.Category, rec.Subcategory, rec.CashFlowRelevance, rec.ParentCode}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
