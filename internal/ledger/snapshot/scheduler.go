// Package snapshot exports the ledger on a cron schedule and keeps each export
// in object storage.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/ledger"
	"certificate-portal/certificate-portal-backend/internal/ledger/export"
)

const defaultTimeout = 5 * time.Minute

// Source reads the whole ledger
type Source interface {
	ReadAll(ctx context.Context) (*ledger.Table, error)
}

// Sink stores a rendered snapshot and returns where it went
type Sink interface {
	PutBytes(ctx context.Context, name string, data []byte) (string, error)
}

// Config configures the snapshot schedule
type Config struct {
	// Cron is a standard five-field expression, e.g. "0 2 * * *"
	Cron     string
	Format   string
	Timezone string
	Timeout  time.Duration
}

// Scheduler runs ledger snapshots on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	location *time.Location
	source   Source
	sink     Sink
	config   Config
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler validates config and creates a stopped scheduler
func NewScheduler(source Source, sink Sink, config Config, logger *zap.Logger) (*Scheduler, error) {
	if source == nil || sink == nil {
		return nil, errors.New("snapshot source and sink are required")
	}
	schedule, err := cron.ParseStandard(config.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", config.Cron, err)
	}

	config.Format = strings.ToLower(strings.TrimSpace(config.Format))
	switch config.Format {
	case "":
		config.Format = export.FormatCSV
	case export.FormatCSV, export.FormatXLSX, export.FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %s", export.ErrUnsupportedFormat, config.Format)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	loc := time.UTC
	if config.Timezone != "" {
		if loc, err = time.LoadLocation(config.Timezone); err != nil {
			return nil, fmt.Errorf("invalid snapshot timezone %q: %w", config.Timezone, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		location: loc,
		source:   source,
		sink:     sink,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start schedules the snapshot job and starts the cron runner
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("snapshot scheduler already running")
	}

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Ledger snapshot failed", zap.Error(err))
		}
	}))
	s.cron.Start()
	s.running = true

	s.logger.Info("Started ledger snapshots",
		zap.String("cron", s.config.Cron),
		zap.String("format", s.config.Format),
		zap.Time("next_run", s.Next()))
	return nil
}

// Stop stops the runner and waits for a running snapshot to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping ledger snapshots")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
}

// Next returns the next scheduled run
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.location))
}

// RunOnce exports the ledger now and returns the stored key
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	table, err := s.source.ReadAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read ledger: %w", err)
	}
	table = table.Normalized()

	name := "certificate_ledger_" + s.now().UTC().Format("20060102T150405Z")
	file, err := export.Render(s.config.Format, name, table.Header, table.Rows)
	if err != nil {
		return "", fmt.Errorf("failed to render snapshot: %w", err)
	}

	key, err := s.sink.PutBytes(ctx, file.Name, file.Data)
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.logger.Info("Ledger snapshot stored",
		zap.String("key", key),
		zap.Int("rows", table.Len()),
		zap.Int("bytes", len(file.Data)))
	return key, nil
}
