package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fitdesk/enrollkit/internal/store"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// Discarder tells the upload backend to drop unclaimed temporary uploads.
// Satisfied by transport.Client (avoids import cycle).
type Discarder interface {
	DiscardTempUploads(ctx context.Context, tempIDs []string) error
}

// Config controls the sweep schedule and the handle age cutoff.
type Config struct {
	// Schedule is a five-field cron expression. Defaults to hourly.
	Schedule string
	// MaxAge is how long an unclaimed handle may live before it is swept.
	// Defaults to 24h.
	MaxAge time.Duration
	// BatchSize caps handles discarded per sweep. Defaults to 200.
	BatchSize int
}

// Janitor periodically discards temporary upload handles that were issued
// but never claimed by a successful submission (the user abandoned the
// wizard or the browser died mid-flow).
type Janitor struct {
	store     store.Store
	discarder Discarder
	cfg       Config
	parser    cron.Parser
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	sweepMu  sync.Mutex
	sweeping bool
}

// New creates a Janitor. Sweeps do not start until Start is called.
func New(s store.Store, discarder Discarder, cfg Config, logger *slog.Logger) *Janitor {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 * * * *"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Janitor{
		store:     s,
		discarder: discarder,
		cfg:       cfg,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:    logger,
	}
}

// Start launches the background sweep loop.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.parser.Parse(j.cfg.Schedule); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", j.cfg.Schedule, err)
	}

	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(sweepCtx)
	j.logger.Info("janitor started", slog.String("schedule", j.cfg.Schedule))
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	schedule, _ := j.parser.Parse(j.cfg.Schedule)
	for {
		next := schedule.Next(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := j.Sweep(ctx); err != nil {
				j.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep discards unclaimed handles older than the cutoff. Safe to call
// directly; overlapping sweeps are skipped rather than queued.
func (j *Janitor) Sweep(ctx context.Context) error {
	j.sweepMu.Lock()
	if j.sweeping {
		j.sweepMu.Unlock()
		return nil
	}
	j.sweeping = true
	j.sweepMu.Unlock()
	defer func() {
		j.sweepMu.Lock()
		j.sweeping = false
		j.sweepMu.Unlock()
	}()

	cutoff := time.Now().UTC().Add(-j.cfg.MaxAge)
	handles, err := j.store.UnclaimedTempHandles(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list unclaimed handles: %w", err)
	}
	if len(handles) == 0 {
		return nil
	}
	if len(handles) > j.cfg.BatchSize {
		handles = handles[:j.cfg.BatchSize]
	}

	tempIDs := make([]string, len(handles))
	for i, h := range handles {
		tempIDs[i] = h.TempID
	}

	if err := j.discarder.DiscardTempUploads(ctx, tempIDs); err != nil {
		// Handles stay recorded so the next sweep retries them.
		return fmt.Errorf("discard temp uploads: %w", err)
	}
	if err := j.store.DeleteTempHandles(ctx, tempIDs); err != nil {
		return fmt.Errorf("delete temp handles: %w", err)
	}

	if err := j.store.AppendEvent(ctx, &store.Event{
		WizardID: "janitor",
		Type:     schema.EventTempHandlesDiscarded,
		Payload:  map[string]any{"count": len(tempIDs)},
	}); err != nil {
		j.logger.Warn("append sweep event", slog.String("error", err.Error()))
	}

	j.logger.Info("discarded unclaimed temp handles", slog.Int("count", len(tempIDs)))
	return nil
}

// Stop gracefully shuts down the janitor.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel == nil {
		return nil
	}
	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil

	j.logger.Info("janitor stopped")
	return nil
}
