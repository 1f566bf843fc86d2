package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/hierarchy"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
	"github.com/cleared-dev/ledger/internal/storage/memory"
)

var errWriteTimeout = errors.New("write timeout")

// flakyStore fails account creation for the listed codes.
type flakyStore struct {
	*memory.Store
	failCodes map[string]bool
}

func (s *flakyStore) CreateAccount(ctx context.Context, acct model.Account) error {
	if s.failCodes[acct.Code] {
		return errWriteTimeout
	}
	return s.Store.CreateAccount(ctx, acct)
}

// racingStore lets a competing writer create every code just before the
// orchestrator's own insert lands.
type racingStore struct {
	*memory.Store
}

func (s *racingStore) CreateAccount(ctx context.Context, acct model.Account) error {
	rival := acct
	rival.ID = acct.ID + "-rival"
	if err := s.Store.CreateAccount(ctx, rival); err != nil {
		return err
	}
	return s.Store.CreateAccount(ctx, acct)
}

// brokenStore cannot list accounts.
type brokenStore struct {
	*memory.Store
}

func (s *brokenStore) ListAccounts(context.Context) ([]model.Account, error) {
	return nil, errors.New("connection refused")
}

var _ AccountRegistry = (*accounts.Registry)(nil)

func newOrchestrator(t *testing.T, store storage.AccountStore) (*Orchestrator, *accounts.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := accounts.NewRegistry(store, logger)
	return NewOrchestrator(reg, nil, logger), reg
}

func sampleFeed(t *testing.T) []model.ImportRecord {
	t.Helper()
	recs, err := DefaultRegistry().ParseFile("testdata/coa.csv", "")
	require.NoError(t, err)
	return recs
}

func TestRun_ImportsFeed(t *testing.T) {
	o, reg := newOrchestrator(t, memory.New())
	ctx := context.Background()

	res, err := o.Run(ctx, sampleFeed(t))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 11, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 6, res.Linked)
	assert.Empty(t, res.Diagnostics)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	kas, ok, err := reg.FindByCode(ctx, "1100")
	require.NoError(t, err)
	require.True(t, ok)
	bank, ok, err := reg.FindByCode(ctx, "1120")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kas.ID, bank.ParentID)
	assert.Equal(t, model.AccountTypeAsset, bank.Type)
}

func TestRun_Idempotent(t *testing.T) {
	o, reg := newOrchestrator(t, memory.New())
	ctx := context.Background()
	feed := sampleFeed(t)

	_, err := o.Run(ctx, feed)
	require.NoError(t, err)
	once, err := reg.List(ctx)
	require.NoError(t, err)

	res, err := o.Run(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, len(feed), res.Skipped)
	assert.Equal(t, 0, res.Linked)

	twice, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRun_IdempotentWithPaddedFields(t *testing.T) {
	o, reg := newOrchestrator(t, memory.New())
	ctx := context.Background()
	feed := []model.ImportRecord{
		{Code: "1000 ", Name: " Kas", Category: "Aset "},
		{Code: " 1010", Name: "Kas di Bank ", Category: "Aset", Subcategory: " Kas "},
		{Code: "1020", Name: "Kas Kecil", Category: "Aset", ParentCode: "1000 "},
	}

	first, err := o.Run(ctx, feed)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 2, first.Linked)
	assert.Empty(t, first.Diagnostics)

	second, err := o.Run(ctx, feed)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Linked)
	assert.Empty(t, second.Diagnostics)

	kas, ok, err := reg.FindByCode(ctx, "1000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Kas", kas.Name)
	for _, code := range []string{"1010", "1020"} {
		child, ok, err := reg.FindByCode(ctx, code)
		require.NoError(t, err)
		require.True(t, ok, code)
		assert.Equal(t, kas.ID, child.ParentID, code)
	}
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failCodes: map[string]bool{"1100": true}}
	core, logs := observer.New(zapcore.WarnLevel)
	reg := accounts.NewRegistry(store, zap.New(core))
	o := NewOrchestrator(reg, nil, zap.New(core))
	ctx := context.Background()
	feed := sampleFeed(t)

	res, err := o.Run(ctx, feed)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 10, res.Created)
	assert.Equal(t, hierarchy.ActionFailed, res.Outcomes[1].Action)
	assert.ErrorIs(t, res.Outcomes[1].Err, errWriteTimeout)

	// Records after the failing one are still created.
	for _, code := range []string{"1110", "1120", "2000", "5100"} {
		_, ok, err := reg.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.True(t, ok, "account %s should exist", code)
	}

	// Children of the failed record stay parentless.
	errs := res.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "1100", errs[0].Code)
	assert.Equal(t, hierarchy.KindCreateFailed, errs[0].Kind)

	failures := logs.FilterMessage("import record failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "1100", failures[0].ContextMap()["code"])
	assert.Equal(t, 2, logs.FilterMessage("import record warning").Len())

	// A later run with a healthy store completes the import.
	store.failCodes = nil
	res, err = o.Run(ctx, feed)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.Linked)
}

func TestRun_DuplicateCodeRaceIsSkipped(t *testing.T) {
	o, reg := newOrchestrator(t, &racingStore{Store: memory.New()})
	ctx := context.Background()

	res, err := o.Run(ctx, []model.ImportRecord{
		{Row: 1, Code: "1000", Name: "Kas di Tangan", Category: "Aset"},
		{Row: 2, Code: "1010", Name: "Kas di Bank", Category: "Aset", Subcategory: "Kas di Tangan"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Linked)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, all[0].ID, all[1].ParentID)
}

func TestRun_ConcurrentRuns(t *testing.T) {
	store := memory.New()
	feed := sampleFeed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, _ := newOrchestrator(t, store)
			res, err := o.Run(ctx, feed)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		assert.True(t, r.Success)
		created += r.Created
	}
	assert.Equal(t, len(feed), created)

	all, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(feed))
}

func TestRun_SnapshotFailure(t *testing.T) {
	o, _ := newOrchestrator(t, &brokenStore{Store: memory.New()})

	_, err := o.Run(context.Background(), sampleFeed(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
}

func TestRun_Canceled(t *testing.T) {
	o, _ := newOrchestrator(t, memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, sampleFeed(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
}

func TestRun_LargeFeedWithForwardReferences(t *testing.T) {
	o, reg := newOrchestrator(t, memory.New())
	ctx := context.Background()

	// Children listed before their parents, three levels deep.
	var feed []model.ImportRecord
	for i := 99; i >= 0; i-- {
		rec := model.ImportRecord{
			Code:     fmt.Sprintf("%04d", i),
			Name:     fmt.Sprintf("Akun %d", i),
			Category: "Beban",
		}
		if i > 0 {
			rec.Subcategory = fmt.Sprintf("Akun %d", i/10)
		}
		feed = append(feed, rec)
	}

	start := time.Now()
	res, err := o.Run(ctx, feed)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 100, res.Created)
	assert.Equal(t, 99, res.Linked)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	for _, a := range all {
		assert.Less(t, accounts.Depth(all, a.ID), 4)
		assert.Equal(t, model.AccountTypeExpense, a.Type)
	}
}
