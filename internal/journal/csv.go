package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cleared-dev/ledger/internal/model"
)

// Header is the CSV header for journal files.
const Header = "entry_number,date,account_code,description,debit,credit,memo"

const (
	numFields   = 7
	dateFormat  = "2006-01-02"
	colNumber   = 0
	colDate     = 1
	colAcctCode = 2
	colDesc     = 3
	colDebit    = 4
	colCredit   = 5
	colMemo     = 6
)

// ReadDrafts reads a journal CSV and groups its rows into drafts by entry
// number, in order of first appearance. The description and date of an
// entry come from its first row.
func ReadDrafts(r io.Reader) ([]Draft, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading journal CSV header: %w", err)
	}

	var drafts []Draft
	index := make(map[string]int)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading journal CSV: %w", err)
		}

		number, date, line, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		i, ok := index[number]
		if !ok {
			index[number] = len(drafts)
			drafts = append(drafts, Draft{
				EntryNumber: number,
				Date:        date,
				Description: rec[colDesc],
			})
			i = len(drafts) - 1
		} else if !drafts[i].Date.Equal(date) {
			return nil, fmt.Errorf("row %d: entry %s has lines on %s and %s",
				row, number, drafts[i].Date.Format(dateFormat), date.Format(dateFormat))
		}
		drafts[i].Lines = append(drafts[i].Lines, line)
	}
	return drafts, nil
}

// WriteEntries writes entries one row per line, including the header.
// codes maps account ids to account codes; unmapped ids are written as is.
func WriteEntries(w io.Writer, entries []model.JournalEntry, codes map[string]string) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := 2
	for _, en := range entries {
		for _, l := range en.Lines {
			if err := cw.Write(MarshalLine(en, l, codes)); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalLine converts one line of en to a CSV row.
func MarshalLine(en model.JournalEntry, l model.JournalLine, codes map[string]string) []string {
	rec := make([]string, numFields)
	rec[colNumber] = en.EntryNumber
	rec[colDate] = en.Date.Format(dateFormat)
	rec[colAcctCode] = l.AccountID
	if code, ok := codes[l.AccountID]; ok {
		rec[colAcctCode] = code
	}
	rec[colDesc] = en.Description
	if !l.Debit.IsZero() {
		rec[colDebit] = l.Debit.String()
	}
	if !l.Credit.IsZero() {
		rec[colCredit] = l.Credit.String()
	}
	rec[colMemo] = l.Memo
	return rec
}

// UnmarshalRow converts a CSV row to its entry number, date, and line.
func UnmarshalRow(rec []string) (string, time.Time, DraftLine, error) {
	if len(rec) != numFields {
		return "", time.Time{}, DraftLine{}, fmt.Errorf("expected %d fields, got %d", numFields, len(rec))
	}

	number := strings.TrimSpace(rec[colNumber])
	if number == "" {
		return "", time.Time{}, DraftLine{}, errors.New("entry_number is required")
	}

	date, err := time.Parse(dateFormat, strings.TrimSpace(rec[colDate]))
	if err != nil {
		return "", time.Time{}, DraftLine{}, fmt.Errorf("parsing date %q: %w", rec[colDate], err)
	}

	var debit, credit model.Amount
	if s := strings.TrimSpace(rec[colDebit]); s != "" {
		if debit, err = model.ParseAmount(s); err != nil {
			return "", time.Time{}, DraftLine{}, fmt.Errorf("parsing debit %q: %w", s, err)
		}
	}
	if s := strings.TrimSpace(rec[colCredit]); s != "" {
		if credit, err = model.ParseAmount(s); err != nil {
			return "", time.Time{}, DraftLine{}, fmt.Errorf("parsing credit %q: %w", s, err)
		}
	}

	return number, date, DraftLine{
		AccountCode: strings.TrimSpace(rec[colAcctCode]),
		Debit:       debit,
		Credit:      credit,
		Memo:        rec[colMemo],
	}, nil
}
