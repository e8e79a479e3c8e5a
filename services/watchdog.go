package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
)

// Watchdog periodically looks for running matches the arena never reported
// and raises a MatchOverdue event for each, once per start.
type Watchdog struct {
	engine   *Engine
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	reported map[int]time.Time // match id -> StartedAt already reported
	sched    gocron.Scheduler
}

func NewWatchdog(engine *Engine, interval, grace time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		engine:   engine,
		interval: interval,
		grace:    grace,
		logger:   logger,
		reported: make(map[int]time.Time),
	}
}

func (w *Watchdog) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create watchdog scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	sched.Start()
	w.sched = sched
	w.logger.Info("match watchdog started", "interval", w.interval, "grace", w.grace)
	return nil
}

// Sweep publishes MatchOverdue for newly overdue matches and returns how many it raised.
func (w *Watchdog) Sweep(ctx context.Context) int {
	now := w.engine.now()
	overdue := w.engine.OverdueMatches(now, w.grace)

	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[int]bool, len(overdue))
	raised := 0
	for _, m := range overdue {
		seen[m.ID] = true
		if at, ok := w.reported[m.ID]; ok && m.StartedAt != nil && at.Equal(*m.StartedAt) {
			continue
		}
		w.reported[m.ID] = *m.StartedAt
		ev := events.New(events.MatchOverdue, m.TournamentID, map[string]interface{}{
			"match_id":   m.ID,
			"label":      m.Label(),
			"started_at": m.StartedAt,
			"overdue_by": now.Sub(*m.StartedAt).String(),
		})
		ev.ClassID, ev.MatchID = m.ClassID, m.ID
		w.engine.publish(ctx, ev)
		w.logger.Warn("match overdue", "tournament_id", m.TournamentID, "match_id", m.ID, "started_at", m.StartedAt)
		raised++
	}
	for id := range w.reported {
		if !seen[id] {
			delete(w.reported, id)
		}
	}
	return raised
}

func (w *Watchdog) Stop() error {
	if w.sched == nil {
		return nil
	}
	return w.sched.Shutdown()
}
