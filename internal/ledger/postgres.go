package ledger

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresLedger stores rows in a table created on first use
type PostgresLedger struct {
	db    *sqlx.DB
	table string

	mu      sync.Mutex
	created bool
}

// NewPostgresLedger opens dsn and creates a ledger over table
func NewPostgresLedger(dsn, table string) (*PostgresLedger, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	l, err := NewPostgresLedgerWithDB(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewPostgresLedgerWithDB creates a ledger on an existing connection pool
func NewPostgresLedgerWithDB(db *sqlx.DB, table string) (*PostgresLedger, error) {
	if table == "" {
		table = "certificate_ledger"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	return &PostgresLedger{db: db, table: table}, nil
}

// Close closes the connection pool
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

func (l *PostgresLedger) ensureTable(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created {
		return nil
	}

	query := `
		CREATE TABLE IF NOT EXISTS ` + l.table + ` (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			duration TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			grade TEXT NOT NULL,
			certificate_id TEXT NOT NULL,
			email TEXT NOT NULL,
			status TEXT NOT NULL,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	l.created = true
	return nil
}

func (l *PostgresLedger) insertQuery() string {
	return `
		INSERT INTO ` + l.table + ` (
			name, domain, duration, start_date, end_date, grade, certificate_id, email, status
		) VALUES (
			:name, :domain, :duration, :start_date, :end_date, :grade, :certificate_id, :email, :status
		)
	`
}

// Append inserts one row
func (l *PostgresLedger) Append(ctx context.Context, row Row) error {
	if err := l.ensureTable(ctx); err != nil {
		return err
	}
	if _, err := l.db.NamedExecContext(ctx, l.insertQuery(), row); err != nil {
		return fmt.Errorf("failed to insert ledger row: %w", err)
	}
	return nil
}

// ReadAll returns rows in insertion order
func (l *PostgresLedger) ReadAll(ctx context.Context) (*Table, error) {
	if err := l.ensureTable(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT name, domain, duration, start_date, end_date, grade, certificate_id, email, status
		FROM ` + l.table + `
		ORDER BY id
	`
	var rows []Row
	if err := l.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return NewTable(rows...), nil
}

// Replace swaps the table content in one transaction
func (l *PostgresLedger) Replace(ctx context.Context, table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if err := l.ensureTable(ctx); err != nil {
		return err
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+l.table); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	for _, values := range table.Rows {
		row, err := RowFromValues(values)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, l.insertQuery(), row); err != nil {
			return fmt.Errorf("failed to insert ledger row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger replace: %w", err)
	}
	return nil
}
