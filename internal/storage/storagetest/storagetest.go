// Package storagetest holds the behavioral contract every storage.Store
// implementation must satisfy.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) storage.Store

var now = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

// NewAccount returns an active account with a fresh id.
func NewAccount(code, name string, typ model.AccountType) model.Account {
	return model.Account{
		ID:        id.New(),
		Code:      code,
		Name:      name,
		Type:      typ,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewEntry returns a posted two-line entry moving amount from credit to debit.
func NewEntry(number string, date time.Time, debitID, creditID string, amount model.Amount) model.JournalEntry {
	entryID := id.New()
	return model.JournalEntry{
		ID:          entryID,
		EntryNumber: number,
		Date:        date,
		Description: "test entry",
		CreatedBy:   "tester",
		IsPosted:    true,
		PostedAt:    now,
		Lines: []model.JournalLine{
			{ID: id.New(), JournalEntryID: entryID, AccountID: debitID, Debit: amount, Position: 0},
			{ID: id.New(), JournalEntryID: entryID, AccountID: creditID, Credit: amount, Position: 1},
		},
	}
}

// Run executes the full contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("CreateAndGetAccount", func(t *testing.T) { testCreateAndGetAccount(t, open(t)) })
	t.Run("DuplicateCode", func(t *testing.T) { testDuplicateCode(t, open(t)) })
	t.Run("ConcurrentDuplicateCode", func(t *testing.T) { testConcurrentDuplicateCode(t, open(t)) })
	t.Run("ListAndFindByName", func(t *testing.T) { testListAndFindByName(t, open(t)) })
	t.Run("SetParent", func(t *testing.T) { testSetParent(t, open(t)) })
	t.Run("SetParentCycle", func(t *testing.T) { testSetParentCycle(t, open(t)) })
	t.Run("SetActive", func(t *testing.T) { testSetActive(t, open(t)) })
	t.Run("CreateEntry", func(t *testing.T) { testCreateEntry(t, open(t)) })
	t.Run("EntryNumbering", func(t *testing.T) { testEntryNumbering(t, open(t)) })
	t.Run("EntryUnknownAccountIsAtomic", func(t *testing.T) { testEntryUnknownAccountIsAtomic(t, open(t)) })
	t.Run("PostedEntryImmutable", func(t *testing.T) { testPostedEntryImmutable(t, open(t)) })
	t.Run("Reversal", func(t *testing.T) { testReversal(t, open(t)) })
	t.Run("AccountTotals", func(t *testing.T) { testAccountTotals(t, open(t)) })
}

func testCreateAndGetAccount(t *testing.T, s storage.Store) {
	ctx := context.Background()
	acct := NewAccount("1000", "Kas", model.AccountTypeAsset)
	acct.Description = "Operating"
	require.NoError(t, s.CreateAccount(ctx, acct))

	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.Code, got.Code)
	assert.Equal(t, acct.Name, got.Name)
	assert.Equal(t, acct.Type, got.Type)
	assert.Equal(t, "Operating", got.Description)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(now))

	byCode, err := s.GetAccountByCode(ctx, "1000")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byCode.ID)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetAccountByCode(ctx, "9999")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDuplicateCode(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, NewAccount("1000", "Kas", model.AccountTypeAsset)))
	err := s.CreateAccount(ctx, NewAccount("1000", "Kas lain", model.AccountTypeAsset))
	assert.ErrorIs(t, err, storage.ErrDuplicateCode)

	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testConcurrentDuplicateCode(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateAccount(ctx, NewAccount("2000", fmt.Sprintf("Utang %d", i), model.AccountTypeLiability))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrDuplicateCode)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent create may win")
}

func testListAndFindByName(t *testing.T, s storage.Store) {
	ctx := context.Background()
	codes := []string{"3000", "1000", "2000", "1100"}
	for _, c := range codes {
		name := "Akun " + c
		if c == "2000" || c == "1100" {
			name = "Lain-lain"
		}
		require.NoError(t, s.CreateAccount(ctx, NewAccount(c, name, model.AccountTypeAsset)))
	}

	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, c := range codes {
		assert.Equal(t, c, all[i].Code, "list must preserve creation order")
	}

	matches, err := s.FindAccountsByName(ctx, "Lain-lain")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "2000", matches[0].Code)
	assert.Equal(t, "1100", matches[1].Code)

	none, err := s.FindAccountsByName(ctx, "Tidak Ada")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSetParent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	parent := NewAccount("1000", "Kas", model.AccountTypeAsset)
	child := NewAccount("1010", "Kas di Bank", model.AccountTypeAsset)
	require.NoError(t, s.CreateAccount(ctx, parent))
	require.NoError(t, s.CreateAccount(ctx, child))

	later := now.Add(time.Hour)
	require.NoError(t, s.SetAccountParent(ctx, child.ID, parent.ID, later))

	got, err := s.GetAccount(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ParentID)
	assert.True(t, got.UpdatedAt.Equal(later))

	assert.ErrorIs(t, s.SetAccountParent(ctx, "missing", parent.ID, later), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetAccountParent(ctx, child.ID, "missing", later), storage.ErrNotFound)

	require.NoError(t, s.SetAccountParent(ctx, child.ID, "", later))
	got, err = s.GetAccount(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRoot())
}

func testSetParentCycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := NewAccount("1000", "A", model.AccountTypeAsset)
	b := NewAccount("1100", "B", model.AccountTypeAsset)
	c := NewAccount("1110", "C", model.AccountTypeAsset)
	for _, acct := range []model.Account{a, b, c} {
		require.NoError(t, s.CreateAccount(ctx, acct))
	}
	require.NoError(t, s.SetAccountParent(ctx, b.ID, a.ID, now))
	require.NoError(t, s.SetAccountParent(ctx, c.ID, b.ID, now))

	assert.ErrorIs(t, s.SetAccountParent(ctx, a.ID, c.ID, now), storage.ErrCycleDetected)
	assert.ErrorIs(t, s.SetAccountParent(ctx, a.ID, a.ID, now), storage.ErrCycleDetected)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRoot(), "rejected assignment must not be written")
}

func testSetActive(t *testing.T, s storage.Store) {
	ctx := context.Background()
	acct := NewAccount("5000", "Beban", model.AccountTypeExpense)
	require.NoError(t, s.CreateAccount(ctx, acct))

	require.NoError(t, s.SetAccountActive(ctx, acct.ID, false, now))
	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.SetAccountActive(ctx, "missing", true, now), storage.ErrNotFound)
}

func seedPair(t *testing.T, s storage.Store) (model.Account, model.Account) {
	t.Helper()
	ctx := context.Background()
	cash := NewAccount("1000", "Kas", model.AccountTypeAsset)
	payable := NewAccount("2000", "Utang", model.AccountTypeLiability)
	require.NoError(t, s.CreateAccount(ctx, cash))
	require.NoError(t, s.CreateAccount(ctx, payable))
	return cash, payable
}

func testCreateEntry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, payable := seedPair(t, s)

	entry := NewEntry("INV-1", now, cash.ID, payable.ID, 10000)
	entry.Lines[0].Memo = "setoran"
	stored, err := s.CreateEntry(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", stored.EntryNumber)

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", got.EntryNumber)
	assert.Equal(t, "tester", got.CreatedBy)
	assert.True(t, got.IsPosted)
	assert.Equal(t, now.Year(), got.Date.Year())
	assert.Equal(t, now.YearDay(), got.Date.YearDay())
	require.Len(t, got.Lines, 2)
	assert.Equal(t, cash.ID, got.Lines[0].AccountID)
	assert.Equal(t, model.Amount(10000), got.Lines[0].Debit)
	assert.Equal(t, "setoran", got.Lines[0].Memo)
	assert.Equal(t, payable.ID, got.Lines[1].AccountID)
	assert.Equal(t, model.Amount(10000), got.Lines[1].Credit)
	for _, l := range got.Lines {
		assert.Equal(t, entry.ID, l.JournalEntryID)
	}

	dup := NewEntry("INV-1", now, cash.ID, payable.ID, 500)
	_, err = s.CreateEntry(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateEntryNumber)

	_, err = s.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testEntryNumbering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, payable := seedPair(t, s)

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

	e1, err := s.CreateEntry(ctx, NewEntry("", jan, cash.ID, payable.ID, 100))
	require.NoError(t, err)
	e2, err := s.CreateEntry(ctx, NewEntry("", jan, cash.ID, payable.ID, 200))
	require.NoError(t, err)
	e3, err := s.CreateEntry(ctx, NewEntry("", feb, cash.ID, payable.ID, 300))
	require.NoError(t, err)

	assert.Equal(t, "2025-01-001", e1.EntryNumber)
	assert.Equal(t, "2025-01-002", e2.EntryNumber)
	assert.Equal(t, "2025-02-001", e3.EntryNumber)

	list, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-01-001", list[0].EntryNumber)
	assert.Equal(t, "2025-02-001", list[2].EntryNumber)
	assert.Len(t, list[1].Lines, 2)
}

func testEntryUnknownAccountIsAtomic(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, _ := seedPair(t, s)

	entry := NewEntry("BAD-1", now, cash.ID, "no-such-account", 100)
	_, err := s.CreateEntry(ctx, entry)
	require.Error(t, err)

	_, err = s.GetEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "no partial entry may persist")
	totals, err := s.AccountTotals(ctx)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func testPostedEntryImmutable(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, payable := seedPair(t, s)

	entry, err := s.CreateEntry(ctx, NewEntry("", now, cash.ID, payable.ID, 100))
	require.NoError(t, err)

	changed := NewEntry("", now, cash.ID, payable.ID, 999).Lines
	err = s.ReplaceEntryLines(ctx, entry.ID, changed)
	assert.ErrorIs(t, err, storage.ErrEntryPosted)

	got, err := s.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Amount(100), got.Lines[0].Debit)

	assert.ErrorIs(t, s.ReplaceEntryLines(ctx, "missing", changed), storage.ErrNotFound)
}

func testReversal(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, payable := seedPair(t, s)

	orig, err := s.CreateEntry(ctx, NewEntry("", now, cash.ID, payable.ID, 100))
	require.NoError(t, err)

	_, err = s.FindReversal(ctx, orig.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rev := NewEntry("", now, payable.ID, cash.ID, 100)
	rev.ReversesID = orig.ID
	rev, err = s.CreateEntry(ctx, rev)
	require.NoError(t, err)

	found, err := s.FindReversal(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, found.ID)
	assert.Equal(t, orig.ID, found.ReversesID)

	again := NewEntry("", now, payable.ID, cash.ID, 100)
	again.ReversesID = orig.ID
	_, err = s.CreateEntry(ctx, again)
	assert.ErrorIs(t, err, storage.ErrAlreadyReversed)
}

func testAccountTotals(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cash, payable := seedPair(t, s)

	_, err := s.CreateEntry(ctx, NewEntry("", now, cash.ID, payable.ID, 100))
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, NewEntry("", now, cash.ID, payable.ID, 250))
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, NewEntry("", now, payable.ID, cash.ID, 50))
	require.NoError(t, err)

	totals, err := s.AccountTotals(ctx)
	require.NoError(t, err)
	byID := make(map[string]storage.AccountTotal)
	for _, tt := range totals {
		byID[tt.AccountID] = tt
	}
	assert.Equal(t, model.Amount(350), byID[cash.ID].Debit)
	assert.Equal(t, model.Amount(50), byID[cash.ID].Credit)
	assert.Equal(t, model.Amount(50), byID[payable.ID].Debit)
	assert.Equal(t, model.Amount(350), byID[payable.ID].Credit)
}
