package journal

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
	"github.com/cleared-dev/ledger/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	registry *accounts.Registry
	engine   *Engine
	ids      map[string]string // code -> id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.New()
	reg := accounts.NewRegistry(store, logger)
	f := &fixture{store: store, registry: reg, engine: NewEngine(store, reg, logger), ids: map[string]string{}}

	for _, a := range []struct {
		code, name string
		typ        model.AccountType
	}{
		{"1000", "Kas", model.AccountTypeAsset},
		{"1010", "Kas di Bank", model.AccountTypeAsset},
		{"2000", "Utang Usaha", model.AccountTypeLiability},
		{"3000", "Modal", model.AccountTypeEquity},
		{"4000", "Penjualan", model.AccountTypeRevenue},
		{"5000", "Beban Sewa", model.AccountTypeExpense},
	} {
		acct, err := reg.Create(context.Background(), model.AccountDraft{Code: a.code, Name: a.name, Type: a.typ})
		require.NoError(t, err)
		f.ids[a.code] = acct.ID
	}
	return f
}

func amt(s string) model.Amount {
	a, err := model.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) entryCount(t *testing.T) int {
	t.Helper()
	entries, err := f.store.ListEntries(context.Background())
	require.NoError(t, err)
	return len(entries)
}

func pair(debitCode, creditCode string, debit, credit string) []DraftLine {
	return []DraftLine{
		{AccountCode: debitCode, Debit: amt(debit)},
		{AccountCode: creditCode, Credit: amt(credit)},
	}
}

func TestPostUnbalancedIsRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Post(context.Background(), Draft{
		Date:  day(2025, 1, 10),
		Lines: pair("1000", "2000", "100", "90"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnbalancedEntry)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, -1, verr.Line)
	assert.Contains(t, verr.Detail, "100.00")
	assert.Equal(t, 0, f.entryCount(t))
}

func TestPostBalancedIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.Post(ctx, Draft{
		Date:        day(2025, 1, 10),
		Description: "Setoran modal",
		CreatedBy:   "budi",
		Lines:       pair("1000", "2000", "100", "100"),
	})
	require.NoError(t, err)
	assert.True(t, entry.IsPosted)
	assert.False(t, entry.PostedAt.IsZero())
	assert.Equal(t, "2025-01-001", entry.EntryNumber)
	assert.Equal(t, "budi", entry.CreatedBy)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, f.ids["1000"], entry.Lines[0].AccountID)
	assert.Equal(t, entry.ID, entry.Lines[1].JournalEntryID)
	assert.Equal(t, 1, entry.Lines[1].Position)

	err = f.engine.AmendLines(ctx, entry.ID, pair("1000", "2000", "50", "50"))
	assert.ErrorIs(t, err, ErrEntryPosted)

	err = f.store.ReplaceEntryLines(ctx, entry.ID, nil)
	assert.ErrorIs(t, err, storage.ErrEntryPosted)

	got, err := f.engine.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Lines, got.Lines)
}

func TestAmendUnknownEntry(t *testing.T) {
	f := newFixture(t)
	err := f.engine.AmendLines(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateLineRules(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.SetActive(context.Background(), f.ids["3000"], false))

	tests := []struct {
		name  string
		lines []DraftLine
		want  error
		line  int
	}{
		{
			name: "both sides set",
			lines: []DraftLine{
				{AccountCode: "1000", Debit: amt("10"), Credit: amt("10")},
				{AccountCode: "2000", Credit: amt("0.01")},
				{AccountCode: "2000", Debit: amt("0.01")},
			},
			want: ErrInvalidLine,
			line: 0,
		},
		{
			name: "neither side set",
			lines: []DraftLine{
				{AccountCode: "1000", Debit: amt("10")},
				{AccountCode: "2000", Credit: amt("10")},
				{AccountCode: "2000"},
			},
			want: ErrInvalidLine,
			line: 2,
		},
		{
			name: "negative amount",
			lines: []DraftLine{
				{AccountCode: "1000", Debit: amt("-10")},
				{AccountCode: "2000", Credit: amt("-10")},
			},
			want: ErrInvalidLine,
			line: 0,
		},
		{
			name: "amount over limit",
			lines: []DraftLine{
				{AccountCode: "1000", Debit: model.MaxAmount + 1},
				{AccountCode: "2000", Credit: model.MaxAmount + 1},
			},
			want: ErrInvalidLine,
			line: 0,
		},
		{
			name:  "unknown code",
			lines: pair("9999", "2000", "10", "10"),
			want:  ErrUnknownAccount,
			line:  0,
		},
		{
			name: "unknown id",
			lines: []DraftLine{
				{AccountID: "missing", Debit: amt("10")},
				{AccountCode: "2000", Credit: amt("10")},
			},
			want: ErrUnknownAccount,
			line: 0,
		},
		{
			name: "id and code disagree",
			lines: []DraftLine{
				{AccountID: f.ids["1000"], AccountCode: "1010", Debit: amt("10")},
				{AccountCode: "2000", Credit: amt("10")},
			},
			want: ErrUnknownAccount,
			line: 0,
		},
		{
			name:  "inactive account",
			lines: pair("1000", "3000", "10", "10"),
			want:  ErrInactiveAccount,
			line:  1,
		},
		{
			name:  "single line",
			lines: []DraftLine{{AccountCode: "1000", Debit: amt("10")}},
			want:  ErrEmptyEntry,
			line:  -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.Validate(context.Background(), Draft{Lines: tt.lines})
			require.ErrorIs(t, err, tt.want)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.line, verr.Line)

			_, err = f.engine.Post(context.Background(), Draft{Lines: tt.lines})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.entryCount(t))
}

func TestValidateReportsEveryViolation(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Validate(context.Background(), Draft{Lines: []DraftLine{
		{AccountCode: "9999", Debit: amt("5"), Credit: amt("5")},
		{AccountCode: "2000", Credit: amt("1")},
	}})
	assert.ErrorIs(t, err, ErrInvalidLine)
	assert.ErrorIs(t, err, ErrUnknownAccount)
	assert.ErrorIs(t, err, ErrUnbalancedEntry)
}

func TestValidateExclusivityProperty(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		v := model.Amount(rng.Int64N(1_000_000) + 1)
		bad := DraftLine{AccountCode: "1000"}
		if rng.IntN(2) == 0 {
			bad.Debit, bad.Credit = v, model.Amount(rng.Int64N(1_000_000)+1)
		}
		lines := []DraftLine{
			bad,
			{AccountCode: "2000", Debit: v},
			{AccountCode: "2000", Credit: v},
		}
		err := f.engine.Validate(context.Background(), Draft{Lines: lines})
		assert.ErrorIs(t, err, ErrInvalidLine, "iteration %d: %+v", i, bad)
	}
}

func TestPostBalanceProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(2025, 1))
	codes := []string{"1000", "1010", "2000", "4000", "5000"}

	posted := 0
	for i := 0; i < 300; i++ {
		var lines []DraftLine
		var debit, credit model.Amount
		for n := 1 + rng.IntN(5); n > 0; n-- {
			l := DraftLine{AccountCode: codes[rng.IntN(len(codes))]}
			v := model.Amount(rng.Int64N(10_000_000) + 1)
			if rng.IntN(2) == 0 {
				l.Debit = v
				debit += v
			} else {
				l.Credit = v
				credit += v
			}
			lines = append(lines, l)
		}
		switch {
		case debit > credit:
			lines = append(lines, DraftLine{AccountCode: codes[rng.IntN(len(codes))], Credit: debit - credit})
		case credit > debit:
			lines = append(lines, DraftLine{AccountCode: codes[rng.IntN(len(codes))], Debit: credit - debit})
		default:
			lines = append(lines, DraftLine{AccountCode: "1000", Debit: 1}, DraftLine{AccountCode: "2000", Credit: 1})
		}

		if rng.IntN(2) == 0 {
			// Nudge one line off balance.
			k := rng.IntN(len(lines))
			delta := model.Amount(rng.Int64N(1000) + 1)
			if lines[k].Debit != 0 {
				lines[k].Debit += delta
			} else {
				lines[k].Credit += delta
			}
			_, err := f.engine.Post(ctx, Draft{Date: day(2025, 3, 1), Lines: lines})
			require.ErrorIs(t, err, ErrUnbalancedEntry, "iteration %d", i)
			continue
		}

		entry, err := f.engine.Post(ctx, Draft{Date: day(2025, 3, 1), Lines: lines})
		require.NoError(t, err, "iteration %d", i)
		d, c := entry.Totals()
		assert.Equal(t, d, c)
		posted++
	}

	assert.Equal(t, posted, f.entryCount(t))

	balances, err := f.engine.Balances(ctx)
	require.NoError(t, err)
	d, c := TrialBalance(balances)
	assert.Equal(t, d, c)
}

func TestPostRejectsWrappingTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The debits wrap to 100 in int64 and would match the credit.
	_, err := f.engine.Post(ctx, Draft{Date: day(2025, 3, 1), Lines: []DraftLine{
		{AccountCode: "1000", Debit: math.MaxInt64},
		{AccountCode: "1000", Debit: math.MaxInt64},
		{AccountCode: "1000", Debit: 102},
		{AccountCode: "2000", Credit: 100},
	}})
	require.ErrorIs(t, err, ErrInvalidLine)
	assert.ErrorIs(t, err, ErrUnbalancedEntry)

	// Every line is within the limit but the sum is not representable.
	n := int(math.MaxInt64/int64(model.MaxAmount)) + 1
	lines := make([]DraftLine, 0, n+1)
	for range n {
		lines = append(lines, DraftLine{AccountCode: "1000", Debit: model.MaxAmount})
	}
	lines = append(lines, DraftLine{AccountCode: "2000", Credit: model.MaxAmount})
	_, err = f.engine.Post(ctx, Draft{Date: day(2025, 3, 1), Lines: lines})
	require.ErrorIs(t, err, ErrUnbalancedEntry)
	assert.NotErrorIs(t, err, ErrInvalidLine)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, -1, verr.Line)
	assert.Contains(t, verr.Detail, "overflow")
	assert.Equal(t, 0, f.entryCount(t))
}

func TestPostExplicitEntryNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Post(ctx, Draft{EntryNumber: "EXT-1", Date: day(2025, 2, 1), Lines: pair("1000", "4000", "5", "5")})
	require.NoError(t, err)

	_, err = f.engine.Post(ctx, Draft{EntryNumber: "EXT-1", Date: day(2025, 2, 1), Lines: pair("1000", "4000", "5", "5")})
	assert.ErrorIs(t, err, storage.ErrDuplicateEntryNumber)

	got, err := f.engine.GetByNumber(ctx, "EXT-1")
	require.NoError(t, err)
	assert.Equal(t, "EXT-1", got.EntryNumber)

	_, err = f.engine.GetByNumber(ctx, "EXT-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

// collidingStore hands out a taken entry number on the first attempt.
type collidingStore struct {
	*memory.Store
	collisions int
}

func (s *collidingStore) CreateEntry(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error) {
	if s.collisions > 0 {
		s.collisions--
		return model.JournalEntry{}, storage.ErrDuplicateEntryNumber
	}
	return s.Store.CreateEntry(ctx, entry)
}

func TestPostRetriesNumberCollision(t *testing.T) {
	f := newFixture(t)
	store := &collidingStore{Store: f.store, collisions: 2}
	engine := NewEngine(store, f.registry, zaptest.NewLogger(t))

	entry, err := engine.Post(context.Background(), Draft{Date: day(2025, 1, 1), Lines: pair("1000", "4000", "1", "1")})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-001", entry.EntryNumber)

	store.collisions = maxNumberAttempts
	_, err = engine.Post(context.Background(), Draft{Date: day(2025, 1, 1), Lines: pair("1000", "4000", "1", "1")})
	assert.ErrorIs(t, err, storage.ErrDuplicateEntryNumber)
}

func TestConcurrentPostsGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	numbers := map[string]bool{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := f.engine.Post(ctx, Draft{Date: day(2025, 4, 2), Lines: pair("5000", "1000", "12.50", "12.50")})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[entry.EntryNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, 20)
	assert.True(t, numbers["2025-04-020"])
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orig, err := f.engine.Post(ctx, Draft{Date: day(2025, 5, 3), Lines: pair("5000", "1000", "250", "250")})
	require.NoError(t, err)

	rev, err := f.engine.Reverse(ctx, orig.ID, ReverseParams{Date: day(2025, 5, 4), CreatedBy: "auditor"})
	require.NoError(t, err)
	assert.Equal(t, orig.ID, rev.ReversesID)
	assert.Equal(t, "Reversal of "+orig.EntryNumber, rev.Description)
	assert.Equal(t, "2025-05-002", rev.EntryNumber)
	assert.Equal(t, orig.Lines[0].Debit, rev.Lines[0].Credit)
	assert.Equal(t, orig.Lines[1].Credit, rev.Lines[1].Debit)

	_, err = f.engine.Reverse(ctx, orig.ID, ReverseParams{})
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	_, err = f.engine.Reverse(ctx, "missing", ReverseParams{})
	assert.ErrorIs(t, err, ErrNotFound)

	balances, err := f.engine.Balances(ctx)
	require.NoError(t, err)
	for _, b := range balances {
		assert.True(t, b.Balance.IsZero(), "%s should net to zero", b.Account.Code)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, d := range []Draft{
		{Date: day(2025, 2, 1), Lines: pair("1000", "4000", "10", "10")},
		{Date: day(2025, 1, 5), Lines: pair("5000", "1010", "3", "3")},
		{Date: day(2025, 3, 9), Lines: pair("1010", "4000", "7", "7")},
	} {
		_, err := f.engine.Post(ctx, d)
		require.NoError(t, err)
	}

	all, err := f.engine.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-01-001", all[0].EntryNumber)
	assert.Equal(t, "2025-03-001", all[2].EntryNumber)

	feb, err := f.engine.List(ctx, Filter{From: day(2025, 2, 1), To: day(2025, 2, 28)})
	require.NoError(t, err)
	require.Len(t, feb, 1)

	bank, err := f.engine.List(ctx, Filter{AccountID: f.ids["1010"]})
	require.NoError(t, err)
	assert.Len(t, bank, 2)
}

func TestBalancesRollUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.registry.SetParent(ctx, f.ids["1010"], f.ids["1000"]))

	for _, d := range []Draft{
		{Date: day(2025, 1, 2), Lines: pair("1000", "3000", "1000", "1000")},
		{Date: day(2025, 1, 3), Lines: pair("1010", "1000", "400", "400")},
		{Date: day(2025, 1, 4), Lines: pair("1010", "4000", "150.25", "150.25")},
		{Date: day(2025, 1, 5), Lines: pair("5000", "1010", "50", "50")},
	} {
		_, err := f.engine.Post(ctx, d)
		require.NoError(t, err)
	}

	balances, err := f.engine.Balances(ctx)
	require.NoError(t, err)
	byCode := map[string]Balance{}
	for _, b := range balances {
		byCode[b.Account.Code] = b
	}

	assert.Equal(t, amt("600"), byCode["1000"].Balance)
	assert.Equal(t, amt("500.25"), byCode["1010"].Balance)
	assert.Equal(t, amt("1100.25"), byCode["1000"].RolledUp)
	assert.Equal(t, 1, byCode["1010"].Depth)
	assert.Equal(t, amt("1000"), byCode["3000"].Balance)
	assert.Equal(t, amt("150.25"), byCode["4000"].Balance)
	assert.Equal(t, amt("50"), byCode["5000"].Balance)
	assert.True(t, byCode["2000"].RolledUp.IsZero())

	// Parents come before their children.
	assert.Equal(t, "1000", balances[0].Account.Code)
	assert.Equal(t, "1010", balances[1].Account.Code)

	d, c := TrialBalance(balances)
	assert.Equal(t, d, c)
}

// failingAccounts simulates a registry transport failure.
type failingAccounts struct{ Accounts }

func (failingAccounts) FindByCode(context.Context, string) (model.Account, bool, error) {
	return model.Account{}, false, errors.New("connection reset")
}

func TestValidateLookupFailureIsNotValidation(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.store, failingAccounts{Accounts: f.registry}, nil)

	_, err := engine.Post(context.Background(), Draft{Lines: pair("1000", "2000", "1", "1")})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Equal(t, 0, f.entryCount(t))
}
