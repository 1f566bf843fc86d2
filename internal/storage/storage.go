// Package storage defines the persistence contract for accounts and journal
// entries. Implementations live in the memory, sqlite, and postgres
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cleared-dev/ledger/internal/model"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode indicates an account with the same code already exists.
	ErrDuplicateCode = errors.New("duplicate account code")
	// ErrCycleDetected indicates a parent assignment would make the hierarchy cyclic.
	ErrCycleDetected = errors.New("account hierarchy cycle detected")
	// ErrEntryPosted indicates an attempt to change a posted journal entry.
	ErrEntryPosted = errors.New("journal entry is posted and immutable")
	// ErrDuplicateEntryNumber indicates the entry number is already taken.
	ErrDuplicateEntryNumber = errors.New("duplicate entry number")
	// ErrAlreadyReversed indicates the entry already has a reversing entry.
	ErrAlreadyReversed = errors.New("journal entry already reversed")
)

// AccountStore persists chart-of-accounts nodes.
type AccountStore interface {
	// CreateAccount inserts acct. Returns ErrDuplicateCode when the code is taken.
	CreateAccount(ctx context.Context, acct model.Account) error
	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetAccountByCode(ctx context.Context, code string) (model.Account, error)
	// FindAccountsByName returns every account named name, in creation order.
	FindAccountsByName(ctx context.Context, name string) ([]model.Account, error)
	// ListAccounts returns all accounts in creation order.
	ListAccounts(ctx context.Context) ([]model.Account, error)
	// SetAccountParent links id under parentID ("" detaches it). The cycle
	// check and the write happen atomically.
	SetAccountParent(ctx context.Context, id, parentID string, at time.Time) error
	SetAccountActive(ctx context.Context, id string, active bool, at time.Time) error
}

// AccountTotal is the summed movement of one account across posted entries.
type AccountTotal struct {
	AccountID string
	Debit     model.Amount
	Credit    model.Amount
}

// JournalStore persists journal entries with their lines.
type JournalStore interface {
	// CreateEntry writes the entry and all of its lines in one transaction.
	// An empty EntryNumber is assigned the next number in the entry's month.
	CreateEntry(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error)
	GetEntry(ctx context.Context, id string) (model.JournalEntry, error)
	// ListEntries returns entries ordered by date, then entry number.
	ListEntries(ctx context.Context) ([]model.JournalEntry, error)
	// FindReversal returns the entry reversing entryID, or ErrNotFound.
	FindReversal(ctx context.Context, entryID string) (model.JournalEntry, error)
	// ReplaceEntryLines swaps the lines of an unposted entry. Returns
	// ErrEntryPosted for posted entries.
	ReplaceEntryLines(ctx context.Context, id string, lines []model.JournalLine) error
	// AccountTotals sums debits and credits per account over posted entries.
	AccountTotals(ctx context.Context) ([]AccountTotal, error)
}

// Store is the full persistence surface used by the ledger core.
type Store interface {
	AccountStore
	JournalStore
	Close() error
}

// ParentLookup returns the parent id of account id and whether the account exists.
type ParentLookup func(id string) (parentID string, found bool, err error)

// CheckParent walks parent links from parentID upward and reports
// ErrCycleDetected when id is reached, ErrNotFound when parentID is absent.
func CheckParent(id, parentID string, lookup ParentLookup) error {
	if parentID == "" {
		return nil
	}
	seen := make(map[string]bool)
	for cur := parentID; cur != ""; {
		if cur == id || seen[cur] {
			return ErrCycleDetected
		}
		seen[cur] = true
		next, found, err := lookup(cur)
		if err != nil {
			return err
		}
		if !found {
			if cur == parentID {
				return ErrNotFound
			}
			return nil
		}
		cur = next
	}
	return nil
}
