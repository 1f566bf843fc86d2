package model

import "strings"

// ImportRecord is one row of an external chart-of-accounts feed.
// JSON keys match the field names used by the source feed.
type ImportRecord struct {
	Row               int    `json:"-"` // 1-based position in the feed
	Code              string `json:"Account Code"`
	Name              string `json:"Account Name"`
	Category          string `json:"Category"`
	Subcategory       string `json:"Subcategory"`
	CashFlowRelevance string `json:"Cash Flow Relevance"`
	ParentCode        string `json:"Parent Code,omitempty"`
}

// HasParent reports whether the record names a parent by code or by name.
func (r ImportRecord) HasParent() bool {
	return r.ParentCode != "" || r.Subcategory != ""
}

// Trimmed returns the record with surrounding whitespace removed from every
// text field.
func (r ImportRecord) Trimmed() ImportRecord {
	r.Code = strings.TrimSpace(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	r.Category = strings.TrimSpace(r.Category)
	r.Subcategory = strings.TrimSpace(r.Subcategory)
	r.CashFlowRelevance = strings.TrimSpace(r.CashFlowRelevance)
	r.ParentCode = strings.TrimSpace(r.ParentCode)
	return r
}
