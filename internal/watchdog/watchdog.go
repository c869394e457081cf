// Package watchdog runs the periodic inactivity check that keeps the
// board's timer honest across sleeps, locks and closed lids.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/pkg/models"
)

// DefaultCheckInterval matches the background checker of the original tool:
// the check is cheap and idempotent, so 30s is plenty.
const DefaultCheckInterval = 30 * time.Second

// Notifier receives the decision to surface a user-visible auto-pause
// notice. Delivery (desktop notification, terminal bell, log line) is the
// caller's business.
type Notifier interface {
	Notify(taskTitle string, gap time.Duration)
}

// SettingsSource supplies the current auto-pause preferences. It is read on
// every tick so settings edits take effect without a restart.
type SettingsSource func(ctx context.Context) models.Settings

// Watchdog periodically force-pauses the active task after an inactivity
// gap, crediting work only up to the last observed activity.
type Watchdog struct {
	board    *engine.Board
	monitor  *engine.ActivityMonitor
	settings SettingsSource
	notifier Notifier
	logger   *slog.Logger

	// CheckInterval overrides DefaultCheckInterval, mainly for tests.
	CheckInterval time.Duration
	// Now is swappable for deterministic tests.
	Now func() time.Time
}

func New(board *engine.Board, monitor *engine.ActivityMonitor, settings SettingsSource, notifier Notifier, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		board:         board,
		monitor:       monitor,
		settings:      settings,
		notifier:      notifier,
		logger:        logger,
		CheckInterval: DefaultCheckInterval,
		Now:           time.Now,
	}
}

// Run checks for inactivity until ctx is cancelled. The ticker is stopped
// on return; overlapping or repeated checks are harmless because pausing a
// non-WORKING task is a no-op.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Check(ctx); err != nil {
				w.logger.Error("inactivity check failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Check runs a single inactivity evaluation and applies the outcome.
func (w *Watchdog) Check(ctx context.Context) error {
	settings := w.settings(ctx)
	policy := engine.InactivityPolicy{
		PauseAfter:  settings.AutoPauseThreshold(),
		NotifyAfter: settings.NotifyThreshold(),
	}

	decision := policy.Evaluate(w.monitor.LastActive(), w.Now())
	if !decision.ShouldPause {
		return nil
	}

	paused, err := w.board.AutoPause(ctx, decision)
	if err != nil {
		return err
	}
	if paused == nil {
		return nil
	}
	if decision.ShouldNotify && w.notifier != nil {
		w.notifier.Notify(paused.Title, decision.Gap)
	}
	return nil
}
