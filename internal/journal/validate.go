package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// Rejection reasons. Validation failures wrap one of these in a
// *ValidationError.
var (
	ErrUnbalancedEntry = errors.New("unbalanced entry")
	ErrInvalidLine     = errors.New("invalid line")
	ErrUnknownAccount  = errors.New("unknown account")
	ErrInactiveAccount = errors.New("inactive account")
	ErrEmptyEntry      = errors.New("entry needs at least two lines")

	ErrAlreadyReversed = storage.ErrAlreadyReversed
	ErrEntryPosted     = storage.ErrEntryPosted
	ErrNotFound        = storage.ErrNotFound
)

// ValidationError describes a single violation. Line is the zero-based index
// of the offending line, or -1 for entry-level problems.
type ValidationError struct {
	Err    error
	Line   int
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
	return fmt.Sprintf("line %d: %v: %s", e.Line+1, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Accounts resolves line references against the registry.
type Accounts interface {
	Get(ctx context.Context, accountID string) (model.Account, error)
	FindByCode(ctx context.Context, code string) (model.Account, bool, error)
	List(ctx context.Context) ([]model.Account, error)
}

// resolveLines validates lines and returns them bound to account ids. All
// violations are collected; the returned error joins them. Lookup failures
// other than absence abort immediately and are not validation errors.
func resolveLines(ctx context.Context, accounts Accounts, lines []DraftLine) ([]model.JournalLine, error) {
	var verrs []error
	add := func(line int, err error, format string, args ...any) {
		verrs = append(verrs, &ValidationError{Err: err, Line: line, Detail: fmt.Sprintf(format, args...)})
	}

	if len(lines) < 2 {
		add(-1, ErrEmptyEntry, "got %d line(s)", len(lines))
	}

	resolved := make([]model.JournalLine, 0, len(lines))
	var debit, credit model.Amount
	overflow := false
	for i, l := range lines {
		switch {
		case l.Debit < 0 || l.Credit < 0:
			add(i, ErrInvalidLine, "amounts must not be negative (debit %s, credit %s)", l.Debit, l.Credit)
		case l.Debit > model.MaxAmount || l.Credit > model.MaxAmount:
			add(i, ErrInvalidLine, "amount exceeds %s (debit %s, credit %s)", model.MaxAmount, l.Debit, l.Credit)
		case l.Debit.IsZero() == l.Credit.IsZero():
			add(i, ErrInvalidLine, "exactly one of debit or credit must be nonzero (debit %s, credit %s)", l.Debit, l.Credit)
		}
		if !overflow {
			var okD, okC bool
			debit, okD = debit.Add(l.Debit)
			credit, okC = credit.Add(l.Credit)
			overflow = !okD || !okC
		}

		acct, found, err := lookup(ctx, accounts, l)
		if err != nil {
			return nil, err
		}
		switch {
		case !found:
			add(i, ErrUnknownAccount, "%s", l.ref())
		case !acct.IsActive:
			add(i, ErrInactiveAccount, "%s (%s)", acct.Code, acct.Name)
		}
		resolved = append(resolved, model.JournalLine{
			AccountID: acct.ID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Memo:      l.Memo,
			Position:  i,
		})
	}

	switch {
	case overflow:
		add(-1, ErrUnbalancedEntry, "line totals overflow")
	case debit != credit:
		add(-1, ErrUnbalancedEntry, "debits (%s) != credits (%s)", debit, credit)
	}
	if len(verrs) > 0 {
		return nil, errors.Join(verrs...)
	}
	return resolved, nil
}

func lookup(ctx context.Context, accounts Accounts, l DraftLine) (model.Account, bool, error) {
	switch {
	case l.AccountID != "":
		acct, err := accounts.Get(ctx, l.AccountID)
		if errors.Is(err, storage.ErrNotFound) {
			return model.Account{}, false, nil
		}
		if err != nil {
			return model.Account{}, false, err
		}
		if l.AccountCode != "" && l.AccountCode != acct.Code {
			return model.Account{}, false, nil
		}
		return acct, true, nil
	case l.AccountCode != "":
		return accounts.FindByCode(ctx, l.AccountCode)
	default:
		return model.Account{}, false, nil
	}
}
