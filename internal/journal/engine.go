// Package journal is the ledger consistency engine: it validates journal
// entries against the account registry and posts them atomically.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// maxNumberAttempts bounds retries when an auto-assigned entry number
// collides with a concurrent poster.
const maxNumberAttempts = 5

// Draft is a candidate journal entry.
type Draft struct {
	EntryNumber string // empty = next number in the entry's month
	Date        time.Time
	Description string
	CreatedBy   string
	Lines       []DraftLine
}

// DraftLine references its account by id or by code.
type DraftLine struct {
	AccountID   string
	AccountCode string
	Debit       model.Amount
	Credit      model.Amount
	Memo        string
}

func (l DraftLine) ref() string {
	switch {
	case l.AccountID != "":
		return "account id " + l.AccountID
	case l.AccountCode != "":
		return "account code " + l.AccountCode
	}
	return "no account reference"
}

// ReverseParams describes the reversing entry.
type ReverseParams struct {
	Date        time.Time // zero = today
	Description string    // empty = "Reversal of <number>"
	CreatedBy   string
}

// Engine validates and posts journal entries.
type Engine struct {
	store    storage.JournalStore
	accounts Accounts
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store storage.JournalStore, accounts Accounts, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		accounts: accounts,
		logger:   logger.Named("journal"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks d without persisting anything.
func (e *Engine) Validate(ctx context.Context, d Draft) error {
	_, err := resolveLines(ctx, e.accounts, d.Lines)
	return err
}

// Post validates d and persists it with its lines as one posted unit. A
// rejected draft leaves no trace in storage.
func (e *Engine) Post(ctx context.Context, d Draft) (model.JournalEntry, error) {
	return e.post(ctx, d, "")
}

func (e *Engine) post(ctx context.Context, d Draft, reversesID string) (model.JournalEntry, error) {
	lines, err := resolveLines(ctx, e.accounts, d.Lines)
	if err != nil {
		e.logger.Info("journal entry rejected", zap.String("entry_number", d.EntryNumber), zap.Error(err))
		return model.JournalEntry{}, err
	}

	now := e.now()
	date := d.Date
	if date.IsZero() {
		date = now
	}
	entry := model.JournalEntry{
		EntryNumber: d.EntryNumber,
		Date:        dateOnly(date),
		Description: d.Description,
		CreatedBy:   d.CreatedBy,
		IsPosted:    true,
		PostedAt:    now,
		ReversesID:  reversesID,
	}

	for attempt := 1; ; attempt++ {
		entry.ID = id.New()
		entry.Lines = make([]model.JournalLine, len(lines))
		for i, l := range lines {
			l.ID = id.New()
			l.JournalEntryID = entry.ID
			entry.Lines[i] = l
		}

		stored, err := e.store.CreateEntry(ctx, entry)
		if err == nil {
			e.logger.Info("journal entry posted",
				zap.String("id", stored.ID),
				zap.String("entry_number", stored.EntryNumber),
				zap.Int("lines", len(stored.Lines)),
				zap.String("created_by", stored.CreatedBy),
			)
			return stored, nil
		}
		switch {
		case errors.Is(err, storage.ErrDuplicateEntryNumber) && d.EntryNumber == "" && attempt < maxNumberAttempts:
			e.logger.Debug("entry number collision, retrying", zap.Int("attempt", attempt))
		case errors.Is(err, storage.ErrNotFound):
			// An account vanished between validation and the insert.
			return model.JournalEntry{}, &ValidationError{Err: ErrUnknownAccount, Line: -1, Detail: err.Error()}
		default:
			return model.JournalEntry{}, fmt.Errorf("posting entry: %w", err)
		}
	}
}

// AmendLines replaces the lines of an entry. Persisted entries are posted,
// so this fails with ErrEntryPosted for any entry that exists.
func (e *Engine) AmendLines(ctx context.Context, entryID string, lines []DraftLine) error {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("entry %s: %w", entryID, err)
	}
	if entry.IsPosted {
		e.logger.Warn("attempt to modify posted entry", zap.String("id", entryID), zap.String("entry_number", entry.EntryNumber))
		return fmt.Errorf("entry %s: %w", entry.EntryNumber, ErrEntryPosted)
	}

	resolved, err := resolveLines(ctx, e.accounts, lines)
	if err != nil {
		return err
	}
	for i := range resolved {
		resolved[i].ID = id.New()
		resolved[i].JournalEntryID = entryID
	}
	if err := e.store.ReplaceEntryLines(ctx, entryID, resolved); err != nil {
		return fmt.Errorf("amending entry %s: %w", entryID, err)
	}
	return nil
}

// Get returns an entry with its lines.
func (e *Engine) Get(ctx context.Context, entryID string) (model.JournalEntry, error) {
	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	return entry, nil
}

// GetByNumber returns the entry with the given entry number.
func (e *Engine) GetByNumber(ctx context.Context, number string) (model.JournalEntry, error) {
	entries, err := e.List(ctx, Filter{})
	if err != nil {
		return model.JournalEntry{}, err
	}
	for _, en := range entries {
		if en.EntryNumber == number {
			return en, nil
		}
	}
	return model.JournalEntry{}, fmt.Errorf("entry %s: %w", number, ErrNotFound)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	From      time.Time // inclusive
	To        time.Time // inclusive
	AccountID string
}

func (f Filter) match(en model.JournalEntry) bool {
	if !f.From.IsZero() && en.Date.Before(dateOnly(f.From)) {
		return false
	}
	if !f.To.IsZero() && en.Date.After(dateOnly(f.To)) {
		return false
	}
	if f.AccountID == "" {
		return true
	}
	for _, l := range en.Lines {
		if l.AccountID == f.AccountID {
			return true
		}
	}
	return false
}

// List returns entries ordered by date, then entry number.
func (e *Engine) List(ctx context.Context, f Filter) ([]model.JournalEntry, error) {
	entries, err := e.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	out := entries[:0]
	for _, en := range entries {
		if f.match(en) {
			out = append(out, en)
		}
	}
	return out, nil
}

// Reverse posts a new entry that undoes entryID by swapping debits and
// credits. An entry can be reversed once.
func (e *Engine) Reverse(ctx context.Context, entryID string, p ReverseParams) (model.JournalEntry, error) {
	orig, err := e.Get(ctx, entryID)
	if err != nil {
		return model.JournalEntry{}, err
	}
	if _, err := e.store.FindReversal(ctx, orig.ID); err == nil {
		return model.JournalEntry{}, fmt.Errorf("entry %s: %w", orig.EntryNumber, ErrAlreadyReversed)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.JournalEntry{}, fmt.Errorf("checking reversal of %s: %w", orig.EntryNumber, err)
	}

	draft := Draft{
		Date:        p.Date,
		Description: p.Description,
		CreatedBy:   p.CreatedBy,
	}
	if draft.Description == "" {
		draft.Description = "Reversal of " + orig.EntryNumber
	}
	for _, l := range orig.Lines {
		draft.Lines = append(draft.Lines, DraftLine{
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Memo:      l.Memo,
		})
	}

	stored, err := e.post(ctx, draft, orig.ID)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyReversed) {
			return model.JournalEntry{}, fmt.Errorf("entry %s: %w", orig.EntryNumber, ErrAlreadyReversed)
		}
		return model.JournalEntry{}, err
	}
	e.logger.Info("journal entry reversed",
		zap.String("original", orig.EntryNumber),
		zap.String("reversal", stored.EntryNumber),
	)
	return stored, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
