package model

import "time"

// JournalEntry is one atomic accounting event made of balanced lines.
type JournalEntry struct {
	ID          string        `json:"id"`
	EntryNumber string        `json:"entry_number"` // "YYYY-MM-NNN" when auto-assigned
	Date        time.Time     `json:"date"`
	Description string        `json:"description"`
	CreatedBy   string        `json:"created_by"`
	IsPosted    bool          `json:"is_posted"`
	PostedAt    time.Time     `json:"posted_at"`
	ReversesID  string        `json:"reverses_id,omitempty"`
	Lines       []JournalLine `json:"lines"`
}

// Totals returns the summed debits and credits of the entry's lines.
func (e JournalEntry) Totals() (debit, credit Amount) {
	for _, l := range e.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return debit, credit
}

// JournalLine is one account movement within an entry.
type JournalLine struct {
	ID             string `json:"id"`
	JournalEntryID string `json:"journal_entry_id"`
	AccountID      string `json:"account_id"`
	Debit          Amount `json:"debit"`  // zero if credit side
	Credit         Amount `json:"credit"` // zero if debit side
	Memo           string `json:"memo,omitempty"`
	Position       int    `json:"position"`
}

// IsDebit reports whether the line moves the debit side.
func (l JournalLine) IsDebit() bool {
	return l.Debit != 0
}
