// Package app wires storage, the account registry, the import orchestrator,
// and the journal engine together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/activity"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/hierarchy"
	"github.com/cleared-dev/ledger/internal/importer"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
	"github.com/cleared-dev/ledger/internal/storage/memory"
	"github.com/cleared-dev/ledger/internal/storage/postgres"
	"github.com/cleared-dev/ledger/internal/storage/sqlite"
)

// App holds the wired components for one storage handle.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    storage.Store
	Accounts *accounts.Registry
	Parsers  *importer.Registry
	Importer *importer.Orchestrator
	Journal  *journal.Engine
	Activity *activity.Log

	now func() time.Time
}

// OpenStore opens the store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// New opens storage and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	a, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore builds every component over an already open store.
func NewWithStore(cfg *config.Config, store storage.Store, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier, err := hierarchy.NewClassifier(cfg.Import.CategoryAliases, cfg.Import.StrictCategories)
	if err != nil {
		return nil, fmt.Errorf("import config: %w", err)
	}

	reg := accounts.NewRegistry(store, logger)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Accounts: reg,
		Parsers:  importer.DefaultRegistry(),
		Importer: importer.NewOrchestrator(reg, classifier, logger),
		Journal:  journal.NewEngine(store, reg, logger),
		Activity: activity.Open(cfg.Activity.Path),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Actor returns actor, or the configured default when empty.
func (a *App) Actor(actor string) string {
	if actor != "" {
		return actor
	}
	return a.Config.Ledger.Actor
}

// Import runs records through the orchestrator and records the run.
func (a *App) Import(ctx context.Context, actor, source string, records []model.ImportRecord) (importer.Result, error) {
	res, err := a.Importer.Run(ctx, records)
	if err != nil {
		return res, err
	}
	a.record(activity.Entry{
		Actor:   a.Actor(actor),
		Action:  activity.ActionImport,
		Subject: source,
		Details: fmt.Sprintf("created=%d skipped=%d linked=%d failed=%d", res.Created, res.Skipped, res.Linked, res.Failed),
	})
	return res, nil
}

// Post posts d, defaulting CreatedBy, and records it.
func (a *App) Post(ctx context.Context, d journal.Draft) (model.JournalEntry, error) {
	d.CreatedBy = a.Actor(d.CreatedBy)
	entry, err := a.Journal.Post(ctx, d)
	if err != nil {
		return model.JournalEntry{}, err
	}
	debit, _ := entry.Totals()
	a.record(activity.Entry{
		Actor:   entry.CreatedBy,
		Action:  activity.ActionPost,
		Subject: entry.EntryNumber,
		Details: fmt.Sprintf("%s, %s", entry.Description, debit),
	})
	return entry, nil
}

// Reverse reverses entryID and records it.
func (a *App) Reverse(ctx context.Context, entryID string, p journal.ReverseParams) (model.JournalEntry, error) {
	p.CreatedBy = a.Actor(p.CreatedBy)
	entry, err := a.Journal.Reverse(ctx, entryID, p)
	if err != nil {
		return model.JournalEntry{}, err
	}
	a.record(activity.Entry{
		Actor:   entry.CreatedBy,
		Action:  activity.ActionReverse,
		Subject: entry.EntryNumber,
		Details: entry.Description,
	})
	return entry, nil
}

// SetActive flips an account's lifecycle flag by code and records it.
func (a *App) SetActive(ctx context.Context, actor, code string, active bool) (model.Account, error) {
	acct, ok, err := a.Accounts.FindByCode(ctx, code)
	if err != nil {
		return model.Account{}, err
	}
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", code, accounts.ErrNotFound)
	}
	if err := a.Accounts.SetActive(ctx, acct.ID, active); err != nil {
		return model.Account{}, err
	}
	acct.IsActive = active

	action := activity.ActionDeactivate
	if active {
		action = activity.ActionActivate
	}
	a.record(activity.Entry{Actor: a.Actor(actor), Action: action, Subject: code, Details: acct.Name})
	return acct, nil
}

// ResolveEntry finds an entry by id or entry number.
func (a *App) ResolveEntry(ctx context.Context, ref string) (model.JournalEntry, error) {
	entry, err := a.Journal.Get(ctx, ref)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return entry, err
	}
	return a.Journal.GetByNumber(ctx, ref)
}

// AccountCodes maps account ids to codes.
func (a *App) AccountCodes(ctx context.Context) (map[string]string, error) {
	all, err := a.Accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string, len(all))
	for _, acct := range all {
		codes[acct.ID] = acct.Code
	}
	return codes, nil
}

// record appends to the activity log. A failing log never fails the
// operation that already committed.
func (a *App) record(e activity.Entry) {
	e.Timestamp = a.now()
	if err := a.Activity.Append(e); err != nil {
		a.Logger.Warn("activity log write failed", zap.String("path", a.Activity.Path()), zap.Error(err))
	}
}
