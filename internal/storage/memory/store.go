// Package memory provides an in-process Store used by tests and the
// "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// Store keeps accounts and entries in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	accounts []model.Account // creation order
	byID     map[string]int
	byCode   map[string]int
	entries  []model.JournalEntry
	entryIdx map[string]int
	numbers  map[string]bool
	reversed map[string]string // reversed entry id -> reversing entry id
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:     make(map[string]int),
		byCode:   make(map[string]int),
		entryIdx: make(map[string]int),
		numbers:  make(map[string]bool),
		reversed: make(map[string]string),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateAccount inserts acct, enforcing code uniqueness.
func (s *Store) CreateAccount(ctx context.Context, acct model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[acct.Code]; ok {
		return storage.ErrDuplicateCode
	}
	if _, ok := s.byID[acct.ID]; ok {
		return fmt.Errorf("account id %s already exists", acct.ID)
	}
	s.accounts = append(s.accounts, acct)
	s.byID[acct.ID] = len(s.accounts) - 1
	s.byCode[acct.Code] = len(s.accounts) - 1
	return nil
}

// GetAccount returns an account by id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[accountID]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return s.accounts[i], nil
}

// GetAccountByCode returns an account by code.
func (s *Store) GetAccountByCode(ctx context.Context, code string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byCode[code]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return s.accounts[i], nil
}

// FindAccountsByName returns accounts named name in creation order.
func (s *Store) FindAccountsByName(ctx context.Context, name string) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Account
	for _, a := range s.accounts {
		if a.Name == name {
			result = append(result, a)
		}
	}
	return result, nil
}

// ListAccounts returns a copy of all accounts in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

// SetAccountParent links accountID under parentID.
func (s *Store) SetAccountParent(ctx context.Context, accountID, parentID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[accountID]
	if !ok {
		return storage.ErrNotFound
	}
	err := storage.CheckParent(accountID, parentID, func(cur string) (string, bool, error) {
		j, ok := s.byID[cur]
		if !ok {
			return "", false, nil
		}
		return s.accounts[j].ParentID, true, nil
	})
	if err != nil {
		return err
	}
	s.accounts[i].ParentID = parentID
	s.accounts[i].UpdatedAt = at
	return nil
}

// SetAccountActive flips the lifecycle flag of an account.
func (s *Store) SetAccountActive(ctx context.Context, accountID string, active bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[accountID]
	if !ok {
		return storage.ErrNotFound
	}
	s.accounts[i].IsActive = active
	s.accounts[i].UpdatedAt = at
	return nil
}

// CreateEntry stores the entry and its lines as one unit.
func (s *Store) CreateEntry(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.JournalEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.EntryNumber == "" {
		prefix := id.EntryNumberPrefix(entry.Date)
		var existing []string
		for n := range s.numbers {
			if strings.HasPrefix(n, prefix) {
				existing = append(existing, n)
			}
		}
		entry.EntryNumber = id.NextEntryNumber(entry.Date, existing)
	}
	if s.numbers[entry.EntryNumber] {
		return model.JournalEntry{}, storage.ErrDuplicateEntryNumber
	}
	if entry.ReversesID != "" {
		if _, ok := s.reversed[entry.ReversesID]; ok {
			return model.JournalEntry{}, storage.ErrAlreadyReversed
		}
	}
	for _, l := range entry.Lines {
		if _, ok := s.byID[l.AccountID]; !ok {
			return model.JournalEntry{}, fmt.Errorf("line %s references account %s: %w", l.ID, l.AccountID, storage.ErrNotFound)
		}
	}

	stored := cloneEntry(entry)
	for i := range stored.Lines {
		stored.Lines[i].JournalEntryID = stored.ID
	}
	s.entries = append(s.entries, stored)
	s.entryIdx[stored.ID] = len(s.entries) - 1
	s.numbers[stored.EntryNumber] = true
	if stored.ReversesID != "" {
		s.reversed[stored.ReversesID] = stored.ID
	}
	return cloneEntry(stored), nil
}

// GetEntry returns an entry with its lines.
func (s *Store) GetEntry(ctx context.Context, entryID string) (model.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.JournalEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.entryIdx[entryID]
	if !ok {
		return model.JournalEntry{}, storage.ErrNotFound
	}
	return cloneEntry(s.entries[i]), nil
}

// ListEntries returns entries ordered by date, then entry number.
func (s *Store) ListEntries(ctx context.Context) ([]model.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.JournalEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EntryNumber < out[j].EntryNumber
	})
	return out, nil
}

// FindReversal returns the entry that reverses entryID.
func (s *Store) FindReversal(ctx context.Context, entryID string) (model.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.JournalEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rid, ok := s.reversed[entryID]
	if !ok {
		return model.JournalEntry{}, storage.ErrNotFound
	}
	return cloneEntry(s.entries[s.entryIdx[rid]]), nil
}

// ReplaceEntryLines swaps the lines of an unposted entry.
func (s *Store) ReplaceEntryLines(ctx context.Context, entryID string, lines []model.JournalLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.entryIdx[entryID]
	if !ok {
		return storage.ErrNotFound
	}
	if s.entries[i].IsPosted {
		return storage.ErrEntryPosted
	}
	replaced := make([]model.JournalLine, len(lines))
	copy(replaced, lines)
	for j := range replaced {
		replaced[j].JournalEntryID = entryID
	}
	s.entries[i].Lines = replaced
	return nil
}

// AccountTotals sums posted movements per account, ordered by account id.
func (s *Store) AccountTotals(ctx context.Context) ([]storage.AccountTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]*storage.AccountTotal)
	for _, e := range s.entries {
		if !e.IsPosted {
			continue
		}
		for _, l := range e.Lines {
			t, ok := sums[l.AccountID]
			if !ok {
				t = &storage.AccountTotal{AccountID: l.AccountID}
				sums[l.AccountID] = t
			}
			t.Debit += l.Debit
			t.Credit += l.Credit
		}
	}
	out := make([]storage.AccountTotal, 0, len(sums))
	for _, t := range sums {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func cloneEntry(e model.JournalEntry) model.JournalEntry {
	lines := make([]model.JournalLine, len(e.Lines))
	copy(lines, e.Lines)
	e.Lines = lines
	return e
}

var _ storage.Store = (*Store)(nil)
