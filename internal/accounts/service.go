package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// Errors returned by the registry. They alias the storage sentinels so
// callers can match either.
var (
	ErrNotFound      = storage.ErrNotFound
	ErrDuplicateCode = storage.ErrDuplicateCode
	ErrCycleDetected = storage.ErrCycleDetected
	ErrInvalidDraft  = errors.New("invalid account draft")
)

// Registry is the authoritative set of chart-of-accounts nodes.
type Registry struct {
	store  storage.AccountStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry creates a Registry over store.
func NewRegistry(store storage.AccountStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger.Named("accounts"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindByCode returns the account with code. Absence is not an error.
func (r *Registry) FindByCode(ctx context.Context, code string) (model.Account, bool, error) {
	acct, err := r.store.GetAccountByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, fmt.Errorf("find account by code %q: %w", code, err)
	}
	return acct, true, nil
}

// FindByName returns the first account named name in registry order.
func (r *Registry) FindByName(ctx context.Context, name string) (model.Account, bool, error) {
	matches, err := r.FindAllByName(ctx, name)
	if err != nil {
		return model.Account{}, false, err
	}
	if len(matches) == 0 {
		return model.Account{}, false, nil
	}
	return matches[0], true, nil
}

// FindAllByName returns every account named name in registry order.
func (r *Registry) FindAllByName(ctx context.Context, name string) ([]model.Account, error) {
	matches, err := r.store.FindAccountsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find accounts by name %q: %w", name, err)
	}
	return matches, nil
}

// Get returns an account by id.
func (r *Registry) Get(ctx context.Context, accountID string) (model.Account, error) {
	acct, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Account{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		return model.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return acct, nil
}

// Create adds a new active, parentless account. Returns ErrDuplicateCode
// when the storage layer already holds the code.
func (r *Registry) Create(ctx context.Context, draft model.AccountDraft) (model.Account, error) {
	code := strings.TrimSpace(draft.Code)
	name := strings.TrimSpace(draft.Name)
	if code == "" {
		return model.Account{}, fmt.Errorf("%w: code is required", ErrInvalidDraft)
	}
	if name == "" {
		return model.Account{}, fmt.Errorf("%w: name is required for %s", ErrInvalidDraft, code)
	}
	if !draft.Type.Valid() {
		return model.Account{}, fmt.Errorf("%w: unknown account type %q for %s", ErrInvalidDraft, draft.Type, code)
	}

	now := r.now()
	acct := model.Account{
		ID:          id.New(),
		Code:        code,
		Name:        name,
		Type:        draft.Type,
		Description: strings.TrimSpace(draft.Description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, storage.ErrDuplicateCode) {
			return model.Account{}, fmt.Errorf("account %s: %w", code, ErrDuplicateCode)
		}
		return model.Account{}, fmt.Errorf("create account %s: %w", code, err)
	}
	r.logger.Debug("account created", zap.String("code", acct.Code), zap.String("id", acct.ID), zap.String("type", string(acct.Type)))
	return acct, nil
}

// SetParent links accountID under parentID. A cycle is a bug in hierarchy
// data and is logged at error level.
func (r *Registry) SetParent(ctx context.Context, accountID, parentID string) error {
	err := r.store.SetAccountParent(ctx, accountID, parentID, r.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrCycleDetected):
		r.logger.Error("parent assignment would create a cycle",
			zap.String("account_id", accountID),
			zap.String("parent_id", parentID),
		)
		return fmt.Errorf("set parent of %s to %s: %w", accountID, parentID, ErrCycleDetected)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("set parent of %s to %s: %w", accountID, parentID, ErrNotFound)
	default:
		return fmt.Errorf("set parent of %s: %w", accountID, err)
	}
}

// SetActive flips the lifecycle flag. Accounts are never deleted.
func (r *Registry) SetActive(ctx context.Context, accountID string, active bool) error {
	if err := r.store.SetAccountActive(ctx, accountID, active, r.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
		}
		return fmt.Errorf("set active on %s: %w", accountID, err)
	}
	r.logger.Info("account lifecycle changed", zap.String("id", accountID), zap.Bool("active", active))
	return nil
}

// List returns a full snapshot in registry order.
func (r *Registry) List(ctx context.Context) ([]model.Account, error) {
	accts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accts, nil
}

// ByType returns all accounts of the given type.
func ByType(accounts []model.Account, accountType model.AccountType) []model.Account {
	var result []model.Account
	for _, a := range accounts {
		if a.Type == accountType {
			result = append(result, a)
		}
	}
	return result
}
