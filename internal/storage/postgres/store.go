// Package postgres provides a PostgreSQL-backed ledger store on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
	"github.com/cleared-dev/ledger/internal/storage/postgres/migrations"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	hierarchyLockKey    = 7_201_001
)

// Store persists accounts and journal entries in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to dsn and applies embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		s.db.Close()
	}
	return nil
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFS fs.FS) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, file)
			if err != nil {
				return fmt.Errorf("record migration: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("exec migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", file, err)
		}
	}
	return nil
}

const accountColumns = `id, code, name, type, COALESCE(parent_id, ''), description, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var acct model.Account
	var typ string
	if err := row.Scan(&acct.ID, &acct.Code, &acct.Name, &typ, &acct.ParentID, &acct.Description, &acct.IsActive, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return model.Account{}, err
	}
	acct.Type = model.AccountType(typ)
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	return acct, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// CreateAccount inserts one account; accounts_code_key rejects duplicates.
func (s *Store) CreateAccount(ctx context.Context, acct model.Account) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (id, code, name, type, parent_id, description, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		acct.ID, acct.Code, acct.Name, string(acct.Type), nullable(acct.ParentID),
		acct.Description, acct.IsActive, acct.CreatedAt.UTC(), acct.UpdatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == uniqueViolation && pgErr.ConstraintName == "accounts_code_key":
				return storage.ErrDuplicateCode
			case pgErr.Code == foreignKeyViolation:
				return fmt.Errorf("create account %s: parent: %w", acct.Code, storage.ErrNotFound)
			}
		}
		return fmt.Errorf("create account %s: %w", acct.Code, err)
	}
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	acct, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, storage.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// GetAccountByCode returns one account by code.
func (s *Store) GetAccountByCode(ctx context.Context, code string) (model.Account, error) {
	acct, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, storage.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("get account by code: %w", err)
	}
	return acct, nil
}

// FindAccountsByName returns accounts named name in creation order.
func (s *Store) FindAccountsByName(ctx context.Context, name string) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = $1 ORDER BY seq`, name)
}

// ListAccounts returns all accounts in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY seq`)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// SetAccountParent serializes hierarchy changes with an advisory lock so the
// cycle check sees a stable tree.
func (s *Store) SetAccountParent(ctx context.Context, accountID, parentID string, at time.Time) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey); err != nil {
			return fmt.Errorf("lock hierarchy: %w", err)
		}
		lookup := func(cur string) (string, bool, error) {
			var parent string
			err := tx.QueryRow(ctx, `SELECT COALESCE(parent_id, '') FROM accounts WHERE id = $1`, cur).Scan(&parent)
			if errors.Is(err, pgx.ErrNoRows) {
				return "", false, nil
			}
			if err != nil {
				return "", false, fmt.Errorf("lookup parent of %s: %w", cur, err)
			}
			return parent, true, nil
		}
		if _, found, err := lookup(accountID); err != nil {
			return err
		} else if !found {
			return storage.ErrNotFound
		}
		if err := storage.CheckParent(accountID, parentID, lookup); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET parent_id = $1, updated_at = $2 WHERE id = $3`,
			nullable(parentID), at.UTC(), accountID,
		); err != nil {
			return fmt.Errorf("set account parent: %w", err)
		}
		return nil
	})
}

// SetAccountActive flips the lifecycle flag of an account.
func (s *Store) SetAccountActive(ctx context.Context, accountID string, active bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET is_active = $1, updated_at = $2 WHERE id = $3`, active, at.UTC(), accountID)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateEntry writes the entry and its lines in one transaction.
func (s *Store) CreateEntry(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error) {
	lines := make([]model.JournalLine, len(entry.Lines))
	copy(lines, entry.Lines)
	entry.Lines = lines

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if entry.EntryNumber == "" {
			number, err := nextEntryNumber(ctx, tx, entry.Date)
			if err != nil {
				return err
			}
			entry.EntryNumber = number
		}

		var postedAt *time.Time
		if !entry.PostedAt.IsZero() {
			t := entry.PostedAt.UTC()
			postedAt = &t
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO journal_entries (id, entry_number, entry_date, description, created_by, is_posted, posted_at, reverses_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.ID, entry.EntryNumber, entry.Date, entry.Description, entry.CreatedBy,
			entry.IsPosted, postedAt, nullable(entry.ReversesID),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch {
				case pgErr.Code == uniqueViolation && pgErr.ConstraintName == "journal_entries_number_key":
					return storage.ErrDuplicateEntryNumber
				case pgErr.Code == uniqueViolation && pgErr.ConstraintName == "journal_entries_reverses_key":
					return storage.ErrAlreadyReversed
				case pgErr.Code == foreignKeyViolation:
					return fmt.Errorf("reversed entry %s: %w", entry.ReversesID, storage.ErrNotFound)
				}
			}
			return fmt.Errorf("insert journal entry: %w", err)
		}

		for i := range entry.Lines {
			entry.Lines[i].JournalEntryID = entry.ID
			if err := insertLine(ctx, tx, entry.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.JournalEntry{}, err
	}
	return entry, nil
}

func insertLine(ctx context.Context, tx pgx.Tx, line model.JournalLine) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO journal_lines (id, journal_entry_id, account_id, debit, credit, memo, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.ID, line.JournalEntryID, line.AccountID, int64(line.Debit), int64(line.Credit), line.Memo, line.Position,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("line account %s: %w", line.AccountID, storage.ErrNotFound)
		}
		return fmt.Errorf("insert journal line: %w", err)
	}
	return nil
}

func nextEntryNumber(ctx context.Context, tx pgx.Tx, date time.Time) (string, error) {
	rows, err := tx.Query(ctx,
		`SELECT entry_number FROM journal_entries WHERE entry_number LIKE $1 || '%'`,
		id.EntryNumberPrefix(date),
	)
	if err != nil {
		return "", fmt.Errorf("query entry numbers: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", fmt.Errorf("collect entry numbers: %w", err)
	}
	return id.NextEntryNumber(date, existing), nil
}

const entryColumns = `id, entry_number, entry_date, description, created_by, is_posted, posted_at, COALESCE(reverses_id, '')`

func scanEntry(row pgx.Row) (model.JournalEntry, error) {
	var e model.JournalEntry
	var postedAt *time.Time
	if err := row.Scan(&e.ID, &e.EntryNumber, &e.Date, &e.Description, &e.CreatedBy, &e.IsPosted, &postedAt, &e.ReversesID); err != nil {
		return model.JournalEntry{}, err
	}
	e.Date = e.Date.UTC()
	if postedAt != nil {
		e.PostedAt = postedAt.UTC()
	}
	return e, nil
}

// GetEntry returns an entry with its lines in position order.
func (s *Store) GetEntry(ctx context.Context, entryID string) (model.JournalEntry, error) {
	return s.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, entryID)
}

// FindReversal returns the entry that reverses entryID.
func (s *Store) FindReversal(ctx context.Context, entryID string) (model.JournalEntry, error) {
	return s.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reverses_id = $1`, entryID)
}

func (s *Store) getEntry(ctx context.Context, query, arg string) (model.JournalEntry, error) {
	entry, err := scanEntry(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.JournalEntry{}, storage.ErrNotFound
		}
		return model.JournalEntry{}, fmt.Errorf("get journal entry: %w", err)
	}
	lines, err := s.queryLines(ctx, `WHERE journal_entry_id = $1`, entry.ID)
	if err != nil {
		return model.JournalEntry{}, err
	}
	entry.Lines = lines[entry.ID]
	return entry, nil
}

func (s *Store) queryLines(ctx context.Context, where string, args ...any) (map[string][]model.JournalLine, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, journal_entry_id, account_id, debit, credit, memo, position
		   FROM journal_lines `+where+`
		  ORDER BY journal_entry_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal lines: %w", err)
	}
	defer rows.Close()

	byEntry := make(map[string][]model.JournalLine)
	for rows.Next() {
		var l model.JournalLine
		var debit, credit int64
		if err := rows.Scan(&l.ID, &l.JournalEntryID, &l.AccountID, &debit, &credit, &l.Memo, &l.Position); err != nil {
			return nil, fmt.Errorf("scan journal line: %w", err)
		}
		l.Debit = model.Amount(debit)
		l.Credit = model.Amount(credit)
		byEntry[l.JournalEntryID] = append(byEntry[l.JournalEntryID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal lines: %w", err)
	}
	return byEntry, nil
}

// ListEntries returns all entries ordered by date, then entry number.
func (s *Store) ListEntries(ctx context.Context) ([]model.JournalEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY entry_date, entry_number`)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	rows.Close()

	lines, err := s.queryLines(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

// ReplaceEntryLines swaps the lines of an unposted entry.
func (s *Store) ReplaceEntryLines(ctx context.Context, entryID string, lines []model.JournalLine) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var posted bool
		err := tx.QueryRow(ctx, `SELECT is_posted FROM journal_entries WHERE id = $1 FOR UPDATE`, entryID).Scan(&posted)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup journal entry: %w", err)
		}
		if posted {
			return storage.ErrEntryPosted
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_entry_id = $1`, entryID); err != nil {
			return fmt.Errorf("delete journal lines: %w", err)
		}
		for _, l := range lines {
			l.JournalEntryID = entryID
			if err := insertLine(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccountTotals sums posted movements per account.
func (s *Store) AccountTotals(ctx context.Context) ([]storage.AccountTotal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT l.account_id, COALESCE(SUM(l.debit), 0)::BIGINT, COALESCE(SUM(l.credit), 0)::BIGINT
		   FROM journal_lines l
		   JOIN journal_entries e ON e.id = l.journal_entry_id
		  WHERE e.is_posted
		  GROUP BY l.account_id
		  ORDER BY l.account_id`)
	if err != nil {
		return nil, fmt.Errorf("query account totals: %w", err)
	}
	defer rows.Close()

	var totals []storage.AccountTotal
	for rows.Next() {
		var t storage.AccountTotal
		var debit, credit int64
		if err := rows.Scan(&t.AccountID, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scan account total: %w", err)
		}
		t.Debit = model.Amount(debit)
		t.Credit = model.Amount(credit)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account totals: %w", err)
	}
	return totals, nil
}

var _ storage.Store = (*Store)(nil)
