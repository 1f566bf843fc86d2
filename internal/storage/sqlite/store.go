// Package sqlite provides a SQLite-backed ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
	"github.com/cleared-dev/ledger/internal/storage/sqlite/migrations"
)

const dateFormat = "2006-01-02"

// Store persists accounts and journal entries in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const accountColumns = `id, code, name, type, COALESCE(parent_id, ''), description, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var acct model.Account
	var typ string
	var active int
	var createdAt, updatedAt int64
	if err := row.Scan(&acct.ID, &acct.Code, &acct.Name, &typ, &acct.ParentID, &acct.Description, &active, &createdAt, &updatedAt); err != nil {
		return model.Account{}, err
	}
	acct.Type = model.AccountType(typ)
	acct.IsActive = active != 0
	acct.CreatedAt = fromMillis(createdAt)
	acct.UpdatedAt = fromMillis(updatedAt)
	return acct, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// CreateAccount inserts one account; the unique index on code rejects duplicates.
func (s *Store) CreateAccount(ctx context.Context, acct model.Account) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (id, code, name, type, parent_id, description, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID,
		acct.Code,
		acct.Name,
		string(acct.Type),
		nullable(acct.ParentID),
		acct.Description,
		boolInt(acct.IsActive),
		toMillis(acct.CreatedAt),
		toMillis(acct.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "accounts.code") {
			return storage.ErrDuplicateCode
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("create account %s: parent: %w", acct.Code, storage.ErrNotFound)
		}
		return fmt.Errorf("create account %s: %w", acct.Code, err)
	}
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, storage.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// GetAccountByCode returns one account by code.
func (s *Store) GetAccountByCode(ctx context.Context, code string) (model.Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, storage.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("get account by code: %w", err)
	}
	return acct, nil
}

// FindAccountsByName returns accounts named name in creation order.
func (s *Store) FindAccountsByName(ctx context.Context, name string) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = ? ORDER BY seq`, name)
}

// ListAccounts returns all accounts in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY seq`)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
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

// SetAccountParent runs the cycle check and the update in one transaction.
func (s *Store) SetAccountParent(ctx context.Context, accountID, parentID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		lookup := func(cur string) (string, bool, error) {
			var parent string
			err := tx.QueryRowContext(ctx, `SELECT COALESCE(parent_id, '') FROM accounts WHERE id = ?`, cur).Scan(&parent)
			if errors.Is(err, sql.ErrNoRows) {
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
		_, err := tx.ExecContext(ctx,
			`UPDATE accounts SET parent_id = ?, updated_at = ? WHERE id = ?`,
			nullable(parentID), toMillis(at), accountID,
		)
		if err != nil {
			return fmt.Errorf("set account parent: %w", err)
		}
		return nil
	})
}

// SetAccountActive flips the lifecycle flag of an account.
func (s *Store) SetAccountActive(ctx context.Context, accountID string, active bool, at time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), toMillis(at), accountID,
	)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set account active: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateEntry writes the entry and its lines in one transaction.
func (s *Store) CreateEntry(ctx context.Context, entry model.JournalEntry) (model.JournalEntry, error) {
	lines := make([]model.JournalLine, len(entry.Lines))
	copy(lines, entry.Lines)
	entry.Lines = lines

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if entry.EntryNumber == "" {
			number, err := nextEntryNumber(ctx, tx, entry.Date)
			if err != nil {
				return err
			}
			entry.EntryNumber = number
		}

		var postedAt any
		if !entry.PostedAt.IsZero() {
			postedAt = toMillis(entry.PostedAt)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO journal_entries (id, entry_number, entry_date, description, created_by, is_posted, posted_at, reverses_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.EntryNumber,
			entry.Date.Format(dateFormat),
			entry.Description,
			entry.CreatedBy,
			boolInt(entry.IsPosted),
			postedAt,
			nullable(entry.ReversesID),
		)
		if err != nil {
			switch {
			case isUniqueViolation(err, "journal_entries.entry_number"):
				return storage.ErrDuplicateEntryNumber
			case isUniqueViolation(err, "journal_entries.reverses_id"):
				return storage.ErrAlreadyReversed
			case isForeignKeyViolation(err):
				return fmt.Errorf("reversed entry %s: %w", entry.ReversesID, storage.ErrNotFound)
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

func insertLine(ctx context.Context, tx *sql.Tx, line model.JournalLine) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO journal_lines (id, journal_entry_id, account_id, debit, credit, memo, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.JournalEntryID,
		line.AccountID,
		int64(line.Debit),
		int64(line.Credit),
		line.Memo,
		line.Position,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("line account %s: %w", line.AccountID, storage.ErrNotFound)
		}
		return fmt.Errorf("insert journal line: %w", err)
	}
	return nil
}

func nextEntryNumber(ctx context.Context, tx *sql.Tx, date time.Time) (string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT entry_number FROM journal_entries WHERE entry_number LIKE ? || '%'`,
		id.EntryNumberPrefix(date),
	)
	if err != nil {
		return "", fmt.Errorf("query entry numbers: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return "", fmt.Errorf("scan entry number: %w", err)
		}
		existing = append(existing, n)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate entry numbers: %w", err)
	}
	return id.NextEntryNumber(date, existing), nil
}

const entryColumns = `id, entry_number, entry_date, description, created_by, is_posted, posted_at, COALESCE(reverses_id, '')`

func scanEntry(row rowScanner) (model.JournalEntry, error) {
	var e model.JournalEntry
	var date string
	var posted int
	var postedAt sql.NullInt64
	if err := row.Scan(&e.ID, &e.EntryNumber, &date, &e.Description, &e.CreatedBy, &posted, &postedAt, &e.ReversesID); err != nil {
		return model.JournalEntry{}, err
	}
	d, err := time.Parse(dateFormat, date)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("parse entry date %q: %w", date, err)
	}
	e.Date = d
	e.IsPosted = posted != 0
	if postedAt.Valid {
		e.PostedAt = fromMillis(postedAt.Int64)
	}
	return e, nil
}

// GetEntry returns an entry with its lines in position order.
func (s *Store) GetEntry(ctx context.Context, entryID string) (model.JournalEntry, error) {
	return s.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = ?`, entryID)
}

// FindReversal returns the entry that reverses entryID.
func (s *Store) FindReversal(ctx context.Context, entryID string) (model.JournalEntry, error) {
	return s.getEntry(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reverses_id = ?`, entryID)
}

func (s *Store) getEntry(ctx context.Context, query string, arg string) (model.JournalEntry, error) {
	entry, err := scanEntry(s.sqlDB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.JournalEntry{}, storage.ErrNotFound
		}
		return model.JournalEntry{}, fmt.Errorf("get journal entry: %w", err)
	}
	lines, err := s.queryLines(ctx, `WHERE journal_entry_id = ?`, entry.ID)
	if err != nil {
		return model.JournalEntry{}, err
	}
	entry.Lines = lines[entry.ID]
	return entry, nil
}

func (s *Store) queryLines(ctx context.Context, where string, args ...any) (map[string][]model.JournalLine, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
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
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries ORDER BY entry_date, entry_number`)
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var posted int
		err := tx.QueryRowContext(ctx, `SELECT is_posted FROM journal_entries WHERE id = ?`, entryID).Scan(&posted)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup journal entry: %w", err)
		}
		if posted != 0 {
			return storage.ErrEntryPosted
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM journal_lines WHERE journal_entry_id = ?`, entryID); err != nil {
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
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT l.account_id, SUM(l.debit), SUM(l.credit)
		   FROM journal_lines l
		   JOIN journal_entries e ON e.id = l.journal_entry_id
		  WHERE e.is_posted = 1
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

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return strings.Contains(sqliteErr.Error(), column)
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") && strings.Contains(message, column)
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

var _ storage.Store = (*Store)(nil)
