package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/activity"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
)

func newApp(t *testing.T, driver string) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = driver
	cfg.Storage.SQLitePath = filepath.Join(dir, "ledger.db")
	cfg.Activity.Path = filepath.Join(dir, "logs", "activity.csv")
	cfg.Ledger.Actor = "tester"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestEndToEnd(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			a := newApp(t, driver)
			ctx := context.Background()

			res, err := a.Import(ctx, "", "default chart", accounts.DefaultChart())
			require.NoError(t, err)
			require.True(t, res.Success)
			assert.Equal(t, len(accounts.DefaultChart()), res.Created)

			entry, err := a.Post(ctx, journal.Draft{
				Description: "Penjualan tunai",
				Lines: []journal.DraftLine{
					{AccountCode: "1110", Debit: 150000},
					{AccountCode: "4100", Credit: 150000},
				},
			})
			require.NoError(t, err)
			assert.Equal(t, "tester", entry.CreatedBy)

			got, err := a.ResolveEntry(ctx, entry.EntryNumber)
			require.NoError(t, err)
			assert.Equal(t, entry.ID, got.ID)

			rev, err := a.Reverse(ctx, entry.ID, journal.ReverseParams{CreatedBy: "auditor"})
			require.NoError(t, err)
			assert.Equal(t, "auditor", rev.CreatedBy)

			acct, err := a.SetActive(ctx, "", "5300", false)
			require.NoError(t, err)
			assert.False(t, acct.IsActive)

			_, err = a.Post(ctx, journal.Draft{Lines: []journal.DraftLine{
				{AccountCode: "5300", Debit: 100},
				{AccountCode: "1110", Credit: 100},
			}})
			assert.ErrorIs(t, err, journal.ErrInactiveAccount)

			_, err = a.SetActive(ctx, "", "9999", true)
			assert.ErrorIs(t, err, accounts.ErrNotFound)

			log, err := a.Activity.Read()
			require.NoError(t, err)
			var actions []string
			for _, e := range log {
				actions = append(actions, e.Action)
			}
			assert.Equal(t, []string{activity.ActionImport, activity.ActionPost, activity.ActionReverse, activity.ActionDeactivate}, actions)

			codes, err := a.AccountCodes(ctx)
			require.NoError(t, err)
			assert.Len(t, codes, len(accounts.DefaultChart()))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(dir, "ledger.db")
	cfg.Activity.Path = ""
	ctx := context.Background()

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = a.Import(ctx, "", "seed", []model.ImportRecord{{Code: "1000", Name: "Kas", Category: "Aset"}})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	res, err := b.Import(ctx, "", "seed", []model.ImportRecord{{Code: "1000", Name: "Kas", Category: "Aset"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "mysql"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Storage.Driver = config.DriverMemory
	cfg.Import.CategoryAliases = map[string]string{"Harta": "contra"}
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
