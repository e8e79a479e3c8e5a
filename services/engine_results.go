package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/arena"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const arenaActor = "arena"

// ResultInput is a result submission for one match. WinnerID may be nil only
// for a forfeit where both teams were absent.
type ResultInput struct {
	MatchID         int                   `json:"match_id"`
	ExpectedVersion int                   `json:"expected_version"`
	WinnerID        *int                  `json:"winner_id"`
	Scores          *models.Scores        `json:"scores,omitempty"`
	Completion      models.CompletionKind `json:"completion"`
	// Override allows replacing a terminal result.
	Override bool   `json:"override"`
	Actor    string `json:"-"`
}

type ResultOutcome struct {
	Match       *models.Match   `json:"match"`
	Replayed    bool            `json:"replayed,omitempty"`
	Corrected   bool            `json:"corrected,omitempty"`
	NowPlayable []*models.Match `json:"now_playable,omitempty"`
	Reset       *models.Match   `json:"reset,omitempty"`
	ChampionID  *int            `json:"champion_id,omitempty"`
}

// ApplyResult records a terminal result, then advances the bracket for
// elimination matches. Replaying an identical result is a no-op; changing a
// terminal result needs Override and is refused once downstream play depends on it.
func (e *Engine) ApplyResult(ctx context.Context, in ResultInput) (*ResultOutcome, error) {
	if in.Completion == "" {
		in.Completion = models.CompletionManual
	}
	if in.Completion == models.CompletionReset || in.Completion == models.CompletionBye {
		return nil, fmt.Errorf("%w: completion %q cannot be submitted", ErrInvalidResult, in.Completion)
	}
	forfeit := in.Completion == models.CompletionForfeit
	if in.WinnerID == nil && !forfeit {
		return nil, fmt.Errorf("%w: winner is required", ErrInvalidResult)
	}

	var replayed, corrected, rerouted bool
	m, err := e.matches.ApplyMutation(ctx, in.MatchID, in.ExpectedVersion, in.Actor, "apply_result",
		func(m *models.Match) error {
			if !m.Playable() {
				return fmt.Errorf("%w: match %d", ErrMatchNotReady, m.ID)
			}
			if in.WinnerID != nil && !m.HasTeam(*in.WinnerID) {
				return fmt.Errorf("%w: team %d is not in match %d", ErrInvalidResult, *in.WinnerID, m.ID)
			}
			if m.Status.Terminal() {
				if sameResult(m, in) {
					replayed = true
					return ErrNoChange
				}
				if !in.Override {
					return fmt.Errorf("%w: match %d is %s", ErrResultImmutable, m.ID, m.Status)
				}
				if !sameWinner(m.WinnerID, in.WinnerID) {
					if err := e.checkCorrection(ctx, m); err != nil {
						return err
					}
					rerouted = true
				}
				corrected = true
			}

			now := e.now()
			m.Status = models.MatchStatusCompleted
			if forfeit {
				m.Status = models.MatchStatusForfeited
			}
			m.WinnerID = in.WinnerID
			m.Scores = in.Scores
			m.Completion = in.Completion
			m.NeedsResolution = forfeit && in.WinnerID == nil
			m.CompletedAt = &now
			return nil
		})
	if err != nil {
		return nil, err
	}
	out := &ResultOutcome{Match: m, Replayed: replayed, Corrected: corrected}
	if replayed {
		e.logger.Info("result replay ignored", "match_id", m.ID, "version", m.Version)
		return out, nil
	}

	e.queueFor(m.TournamentID).Remove(m.ID)
	e.publishResult(ctx, m, corrected)

	if m.Kind != models.MatchKindElimination || m.WinnerID == nil || (corrected && !rerouted) {
		return out, nil
	}
	class, err := e.store.Classes.GetByID(ctx, m.ClassID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	adv, err := e.bracket.Advance(ctx, m, corrected)
	if err != nil {
		e.logger.Error("result stored but bracket advance failed", "match_id", m.ID, "error", err)
		return nil, fmt.Errorf("result of match %d stored, bracket advance failed: %w", m.ID, err)
	}
	out.NowPlayable = e.schedule(ctx, class, adv.NowPlayable)
	out.Reset = adv.Reset
	out.ChampionID = adv.ChampionID

	ev := events.New(events.BracketAdvanced, m.TournamentID, map[string]interface{}{
		"match_id":     m.ID,
		"label":        m.Label(),
		"changed":      matchIDs(adv.Changed),
		"now_playable": matchIDs(out.NowPlayable),
		"reset":        adv.Reset != nil,
	})
	ev.ClassID, ev.MatchID = m.ClassID, m.ID
	e.publish(ctx, ev)

	if adv.ChampionID != nil {
		e.completeClass(ctx, class.ID, *adv.ChampionID)
	}
	return out, nil
}

// checkCorrection refuses a winner change once its consequences were played on.
func (e *Engine) checkCorrection(ctx context.Context, m *models.Match) error {
	class, err := e.store.Classes.GetByID(ctx, m.ClassID)
	if err != nil {
		return translateRepoError(err)
	}
	switch m.Kind {
	case models.MatchKindSwiss:
		if class.Phase != models.ClassPhaseSwiss {
			return fmt.Errorf("%w: class %d already seeded its bracket", ErrCorrectionBlocked, class.ID)
		}
		if m.Round() < class.CurrentRound {
			return fmt.Errorf("%w: round %d was already paired from this result", ErrCorrectionBlocked, class.CurrentRound)
		}
	case models.MatchKindElimination:
		if class.Phase == models.ClassPhaseComplete {
			return fmt.Errorf("%w: class %d is complete", ErrCorrectionBlocked, class.ID)
		}
		return e.bracket.CheckCorrection(ctx, m)
	}
	return nil
}

func (e *Engine) publishResult(ctx context.Context, m *models.Match, corrected bool) {
	t := events.MatchCompleted
	switch {
	case corrected:
		t = events.ResultCorrected
	case m.Status == models.MatchStatusForfeited:
		t = events.MatchForfeited
	}
	ev := events.New(t, m.TournamentID, m)
	ev.ClassID, ev.MatchID = m.ClassID, m.ID
	if m.NeedsResolution {
		ev.Warnings = append(ev.Warnings, "both teams absent, organizer must resolve the forfeit")
	}
	e.publish(ctx, ev)
	e.logger.Info("match result applied", "tournament_id", m.TournamentID, "match_id", m.ID,
		"label", m.Label(), "status", m.Status, "completion", m.Completion, "corrected", corrected)
}

func sameResult(m *models.Match, in ResultInput) bool {
	if !sameWinner(m.WinnerID, in.WinnerID) || m.Completion != in.Completion {
		return false
	}
	switch {
	case m.Scores == nil && in.Scores == nil:
		return true
	case m.Scores == nil || in.Scores == nil:
		return false
	}
	return *m.Scores == *in.Scores
}

func sameWinner(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func matchIDs(matches []*models.Match) []int {
	ids := make([]int, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}

// Forfeit records a no-show. absentTeamID 0 means both teams were absent: the
// match is forfeited without a winner and flagged for resolution.
func (e *Engine) Forfeit(ctx context.Context, matchID, expectedVersion, absentTeamID int, actor string) (*ResultOutcome, error) {
	m, err := e.store.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	in := ResultInput{
		MatchID:         matchID,
		ExpectedVersion: expectedVersion,
		Completion:      models.CompletionForfeit,
		Actor:           actor,
	}
	if absentTeamID != 0 {
		if !m.HasTeam(absentTeamID) {
			return nil, fmt.Errorf("%w: team %d is not in match %d", ErrInvalidResult, absentTeamID, matchID)
		}
		in.WinnerID = models.IntPtr(m.Opponent(absentTeamID))
	}
	return e.ApplyResult(ctx, in)
}

// ResolveForfeit names the team that advances out of a double forfeit.
func (e *Engine) ResolveForfeit(ctx context.Context, matchID, expectedVersion, winnerID int, actor string) (*ResultOutcome, error) {
	m, err := e.store.Matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if !m.NeedsResolution {
		return nil, fmt.Errorf("%w: match %d has no forfeit awaiting resolution", ErrInvalidResult, matchID)
	}
	return e.ApplyResult(ctx, ResultInput{
		MatchID:         matchID,
		ExpectedVersion: expectedVersion,
		WinnerID:        models.IntPtr(winnerID),
		Scores:          m.Scores,
		Completion:      models.CompletionForfeit,
		Override:        true,
		Actor:           actor,
	})
}

// ReportArenaResult applies a report from the arena controller. A reset report
// is dropped: the match stays running until the replay reports again.
func (e *Engine) ReportArenaResult(ctx context.Context, r arena.Result) error {
	switch r.Completion {
	case models.CompletionReset:
		e.logger.Info("arena reset ignored, awaiting replay result", "match_id", r.MatchID)
		return nil
	case "":
		r.Completion = models.CompletionCompleted
	}
	_, err := e.ApplyResult(ctx, ResultInput{
		MatchID:         r.MatchID,
		ExpectedVersion: r.Version,
		WinnerID:        r.WinnerID,
		Scores:          r.Scores,
		Completion:      r.Completion,
		Actor:           arenaActor,
	})
	var conflict ConflictState
	if errors.As(err, &conflict) {
		e.logger.Warn("stale arena result rejected", "match_id", r.MatchID, "version", r.Version, "error", err)
	}
	return err
}
