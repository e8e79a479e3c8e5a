package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/arena"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// schedule marks freshly playable matches scheduled and queues them. It
// returns the stored matches that made it into the queue.
func (e *Engine) schedule(ctx context.Context, class *models.RobotClass, matches []*models.Match) []*models.Match {
	q := e.queueFor(class.TournamentID)
	var queued []*models.Match
	for _, m := range matches {
		saved, err := e.matches.ApplyLatest(ctx, m.ID, "schedule_match", func(cur *models.Match) error {
			if cur.Status != models.MatchStatusPending {
				return ErrNoChange
			}
			now := e.now()
			cur.Status = models.MatchStatusScheduled
			cur.ScheduledAt = &now
			return nil
		})
		if err != nil {
			e.logger.Error("failed to schedule match", "match_id", m.ID, "error", err)
			continue
		}
		if !saved.Playable() || saved.Status.Terminal() {
			continue
		}
		if err := q.Enqueue(saved, e.matchDuration(class)); err != nil {
			e.logger.Error("failed to enqueue match", "match_id", saved.ID, "error", err)
			continue
		}
		queued = append(queued, saved)
	}
	return queued
}

// StartNextMatch takes the first dispatchable match off the tournament queue,
// marks it in progress and sends it to the arena. An unreachable arena does
// not fail the start; the result can still be entered manually.
func (e *Engine) StartNextMatch(ctx context.Context, tournamentID int, actor string) (*models.Match, error) {
	filter, err := e.coordinator.DispatchFilter(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	q := e.queueFor(tournamentID)

	for {
		next, err := q.Next(filter)
		if err != nil {
			return nil, err
		}
		current, err := e.store.Matches.GetByID(ctx, next.ID)
		if err != nil {
			return nil, translateRepoError(err)
		}
		if current.Status.Terminal() {
			// Finished behind the queue's back, e.g. a manual forfeit.
			q.Remove(current.ID)
			continue
		}

		started, err := e.matches.ApplyMutation(ctx, current.ID, current.Version, actor, "start_match",
			func(m *models.Match) error {
				if m.Status == models.MatchStatusInProgress {
					return ErrNoChange
				}
				if !m.Playable() {
					return fmt.Errorf("%w: match %d", ErrMatchNotReady, m.ID)
				}
				now := e.now()
				m.Status = models.MatchStatusInProgress
				m.StartedAt = &now
				return nil
			})
		if err != nil {
			return nil, err
		}
		if err := q.MarkRunning(started); err != nil {
			return nil, err
		}

		e.sendToArena(ctx, started)
		ev := events.New(events.MatchStarted, started.TournamentID, started)
		ev.ClassID, ev.MatchID = started.ClassID, started.ID
		e.publish(ctx, ev)
		e.logger.Info("match started", "tournament_id", tournamentID, "match_id", started.ID,
			"label", started.Label(), "teams", started.TeamIDs())
		return started, nil
	}
}

func (e *Engine) sendToArena(ctx context.Context, m *models.Match) {
	class, err := e.store.Classes.GetByID(ctx, m.ClassID)
	if err != nil {
		e.logger.Error("failed to load class for arena start", "match_id", m.ID, "error", err)
		return
	}
	params := arena.StartParams{
		MatchID:         m.ID,
		TournamentID:    m.TournamentID,
		ClassID:         class.ID,
		ClassName:       class.Name,
		Label:           m.Label(),
		Team1:           e.participant(ctx, m.Slot1.Team()),
		Team2:           e.participant(ctx, m.Slot2.Team()),
		DurationSeconds: int(e.matchDuration(class) / time.Second),
		Hazards:         class.Hazards,
		Version:         m.Version,
	}
	if err := e.arena.StartMatch(ctx, params); err != nil {
		level := "error"
		if errors.Is(err, arena.ErrUnreachable) {
			level = "unreachable"
		}
		e.logger.Warn("arena start failed, result must be entered manually",
			"match_id", m.ID, "reason", level, "error", err)
	}
}

func (e *Engine) participant(ctx context.Context, teamID int) arena.Participant {
	p := arena.Participant{TeamID: teamID}
	if team, err := e.store.Teams.GetByID(ctx, teamID); err == nil {
		p.Name = team.Name
	}
	return p
}

type DelayOutcome struct {
	Match    *models.Match `json:"match"`
	Position int           `json:"position"`
}

// Delay pushes a match to the back of its band and tells every team whose
// estimated start moved.
func (e *Engine) Delay(ctx context.Context, matchID, expectedVersion int, reason, actor string) (*DelayOutcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: delay reason is required", ErrValidationFailed)
	}
	current, err := e.store.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	q := e.queueFor(current.TournamentID)
	before := q.Snapshot()

	m, err := e.matches.ApplyMutation(ctx, matchID, expectedVersion, actor, "delay_match",
		func(m *models.Match) error {
			if m.Status.Terminal() {
				return fmt.Errorf("%w: match %d is %s", ErrAlreadyComplete, m.ID, m.Status)
			}
			if !m.Playable() {
				return fmt.Errorf("%w: match %d", ErrMatchNotReady, m.ID)
			}
			key := q.BackOfBand(m)
			m.Status = models.MatchStatusDelayed
			m.StartedAt = nil
			m.DelayReasons = append(m.DelayReasons, reason)
			m.QueueKey = &key
			return nil
		})
	if err != nil {
		return nil, err
	}

	if !q.Contains(m.ID) {
		class, err := e.store.Classes.GetByID(ctx, m.ClassID)
		if err != nil {
			return nil, translateRepoError(err)
		}
		if err := q.Enqueue(m, e.matchDuration(class)); err != nil {
			return nil, err
		}
	}
	position, err := q.Delay(m, reason)
	if err != nil {
		return nil, err
	}
	e.announceShift(ctx, m, reason, before, q.Snapshot())
	e.logger.Info("match delayed", "tournament_id", m.TournamentID, "match_id", m.ID,
		"reason", reason, "delays", len(m.DelayReasons), "position", position)
	return &DelayOutcome{Match: m, Position: position}, nil
}

// announceShift publishes one MatchDelayed event per team whose estimated
// start changed between two queue snapshots.
func (e *Engine) announceShift(ctx context.Context, delayed *models.Match, reason string, before, after []models.ScheduleSlot) {
	previous := make(map[int]time.Time, len(before))
	for _, s := range before {
		previous[s.MatchID] = s.EstimatedStart
	}
	for _, s := range after {
		was, ok := previous[s.MatchID]
		if s.MatchID != delayed.ID && ok && was.Equal(s.EstimatedStart) {
			continue
		}
		for _, teamID := range s.TeamIDs {
			ev := events.New(events.MatchDelayed, delayed.TournamentID, map[string]interface{}{
				"delayed_match_id": delayed.ID,
				"reason":           reason,
				"position":         s.Position,
				"estimated_start":  s.EstimatedStart,
			})
			ev.ClassID, ev.MatchID, ev.TeamID = s.ClassID, s.MatchID, teamID
			e.publish(ctx, ev)
		}
	}
}

type RescheduleOutcome struct {
	Match    *models.Match `json:"match"`
	Position int           `json:"position"`
}

// Reschedule moves a queued match to a position inside its priority band. The
// new order key is stored on the match so it survives a queue restore.
func (e *Engine) Reschedule(ctx context.Context, matchID, expectedVersion, position int, actor string) (*RescheduleOutcome, error) {
	if position < 1 {
		return nil, fmt.Errorf("%w: position must be at least 1, got %d", ErrValidationFailed, position)
	}
	current, err := e.store.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	q := e.queueFor(current.TournamentID)

	m, err := e.matches.ApplyMutation(ctx, matchID, expectedVersion, actor, "reschedule_match",
		func(m *models.Match) error {
			if m.Status.Terminal() {
				return fmt.Errorf("%w: match %d is %s", ErrAlreadyComplete, m.ID, m.Status)
			}
			key, err := q.KeyAt(m.ID, position)
			if err != nil {
				return err
			}
			if key == m.OrderKey() {
				return ErrNoChange
			}
			m.QueueKey = &key
			return nil
		})
	if err != nil {
		return nil, err
	}
	pos, err := q.Move(m)
	if err != nil {
		return nil, err
	}
	e.logger.Info("match rescheduled", "tournament_id", m.TournamentID, "match_id", matchID,
		"requested", position, "position", pos, "actor", actor)
	return &RescheduleOutcome{Match: m, Position: pos}, nil
}

func (e *Engine) QueueView(tournamentID int) []models.ScheduleSlot {
	return e.queueFor(tournamentID).Snapshot()
}

// RestoreQueue rebuilds the in-memory queue of a tournament from stored
// matches after a restart.
func (e *Engine) RestoreQueue(ctx context.Context, tournamentID int) (int, error) {
	matches, err := e.store.Matches.ListByTournament(ctx, tournamentID,
		models.MatchStatusPending, models.MatchStatusScheduled, models.MatchStatusDelayed, models.MatchStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to list open matches of tournament %d: %w", tournamentID, err)
	}
	classes, err := e.store.Classes.ListByTournament(ctx, tournamentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list classes of tournament %d: %w", tournamentID, err)
	}
	durations := make(map[int]time.Duration, len(classes))
	for _, c := range classes {
		durations[c.ID] = e.matchDuration(c)
	}

	q := e.queueFor(tournamentID)
	restored := 0
	for _, m := range matches {
		if !m.Playable() {
			continue
		}
		if err := q.Enqueue(m, durations[m.ClassID]); err != nil {
			return restored, err
		}
		if m.Status == models.MatchStatusInProgress {
			if err := q.MarkRunning(m); err != nil {
				return restored, err
			}
		}
		restored++
	}
	e.logger.Info("schedule queue restored", "tournament_id", tournamentID, "matches", restored)
	return restored, nil
}

// OverdueMatches lists running matches, across all tournaments, that should
// have reported a result more than grace ago.
func (e *Engine) OverdueMatches(now time.Time, grace time.Duration) []*models.Match {
	e.queuesMu.Lock()
	queues := make([]*ScheduleQueue, 0, len(e.queues))
	for _, q := range e.queues {
		queues = append(queues, q)
	}
	e.queuesMu.Unlock()

	var out []*models.Match
	for _, q := range queues {
		out = append(out, q.Overdue(now, grace)...)
	}
	return out
}
