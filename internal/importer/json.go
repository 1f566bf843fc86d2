package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cleared-dev/ledger/internal/model"
)

// JSONParser parses a JSON array of feed objects keyed by the feed's field
// names ("Account Code", "Account Name", ...).
type JSONParser struct{}

// Format returns the parser name.
func (p *JSONParser) Format() string { return "json" }

// Parse reads a JSON feed.
func (p *JSONParser) Parse(r io.Reader) ([]model.ImportRecord, error) {
	var records []model.ImportRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding JSON feed: %w", err)
	}
	for i := range records {
		records[i] = records[i].Trimmed()
		records[i].Row = i + 1
	}
	return records, nil
}
