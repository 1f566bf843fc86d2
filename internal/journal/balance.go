package journal

import (
	"context"
	"fmt"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
)

// Balance is one account's position over all posted entries.
type Balance struct {
	Account model.Account `json:"account"`
	Debit   model.Amount  `json:"debit"`   // own posted debits
	Credit  model.Amount  `json:"credit"`  // own posted credits
	Balance model.Amount  `json:"balance"` // own, signed to the account's normal side
	// Rolled* include every descendant account.
	RolledDebit  model.Amount `json:"rolled_debit"`
	RolledCredit model.Amount `json:"rolled_credit"`
	RolledUp     model.Amount `json:"rolled_up"`
	Depth        int          `json:"depth"`
}

// Balances derives per-account balances from posted entries and rolls them
// up through the account hierarchy. Results are in tree order (parents
// before children).
func (e *Engine) Balances(ctx context.Context) ([]Balance, error) {
	accts, err := e.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	totals, err := e.store.AccountTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("summing postings: %w", err)
	}

	byAccount := make(map[string]*Balance, len(accts))
	for _, a := range accts {
		byAccount[a.ID] = &Balance{Account: a}
	}
	for _, t := range totals {
		b, ok := byAccount[t.AccountID]
		if !ok {
			continue
		}
		b.Debit = t.Debit
		b.Credit = t.Credit
	}

	var out []Balance
	var walk func(n *accounts.Node, depth int) (model.Amount, model.Amount)
	walk = func(n *accounts.Node, depth int) (model.Amount, model.Amount) {
		b := byAccount[n.Account.ID]
		b.Depth = depth
		idx := len(out)
		out = append(out, Balance{})

		dr, cr := b.Debit, b.Credit
		for _, c := range n.Children {
			cdr, ccr := walk(c, depth+1)
			dr += cdr
			cr += ccr
		}
		b.RolledDebit, b.RolledCredit = dr, cr
		b.Balance = signed(n.Account.Type, b.Debit, b.Credit)
		b.RolledUp = signed(n.Account.Type, dr, cr)
		out[idx] = *b
		return dr, cr
	}
	for _, root := range accounts.BuildTree(accts) {
		walk(root, 0)
	}
	return out, nil
}

// TrialBalance sums own debits and credits over balances. The two totals
// are equal for any ledger built from balanced entries.
func TrialBalance(balances []Balance) (debit, credit model.Amount) {
	for _, b := range balances {
		debit += b.Debit
		credit += b.Credit
	}
	return debit, credit
}

func signed(t model.AccountType, debit, credit model.Amount) model.Amount {
	if t.DebitNormal() {
		return debit - credit
	}
	return credit - debit
}
