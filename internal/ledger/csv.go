package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 25 * time.Millisecond

// CSVLedger appends rows to a local CSV file. Writers are serialized by an
// in-process mutex and an advisory file lock shared with other processes.
type CSVLedger struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewCSVLedger creates a ledger backed by the CSV file at path
func NewCSVLedger(path string) (*CSVLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &CSVLedger{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Append writes one row, and the header first when the file is empty
func (l *CSVLedger) Append(ctx context.Context, row Row) error {
	unlock, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("failed to write ledger header: %w", err)
		}
	}
	if err := w.Write(row.Values()); err != nil {
		return fmt.Errorf("failed to write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	return f.Sync()
}

// ReadAll returns the whole file. A missing file is an empty ledger.
func (l *CSVLedger) ReadAll(ctx context.Context) (*Table, error) {
	unlock, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	return readCSV(f)
}

// Replace overwrites the file with table through a temp file and rename
func (l *CSVLedger) Replace(ctx context.Context, table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	unlock, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	if err := w.WriteAll(table.Rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

func (l *CSVLedger) acquire(ctx context.Context) (func(), error) {
	return acquire(ctx, &l.mu, l.lock)
}

// acquire takes the process mutex, then the file lock
func acquire(ctx context.Context, mu *sync.Mutex, lock *flock.Flock) (func(), error) {
	mu.Lock()
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	return func() {
		_ = lock.Unlock()
		mu.Unlock()
	}, nil
}

// readCSV parses a ledger file, tolerating short rows
func readCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}
	if len(records) == 0 {
		return NewTable(), nil
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}
