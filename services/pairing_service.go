package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/brackets"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

// PairingService turns a class's standings into the next Swiss round.
type PairingService struct {
	store           *repositories.Store
	tierGuardRounds int
	logger          *slog.Logger
	now             func() time.Time
}

func NewPairingService(store *repositories.Store, tierGuardRounds int, logger *slog.Logger) *PairingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PairingService{store: store, tierGuardRounds: tierGuardRounds, logger: logger, now: time.Now}
}

// Standings recomputes the class standings from its terminal Swiss matches.
func (s *PairingService) Standings(ctx context.Context, classID int) ([]*models.Standing, error) {
	teams, err := s.store.Teams.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams of class %d: %w", classID, err)
	}
	matches, err := s.store.Matches.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of class %d: %w", classID, err)
	}
	return brackets.ComputeStandings(classID, teams, matches), nil
}

// RoundOutcome is a computed round ready to be committed with the class.
type RoundOutcome struct {
	Plan    *brackets.RoundPlan
	Matches []*models.Match
}

// PlanNextRound computes the pairings of the class's next Swiss round. It does
// not store anything; byes come back as already-completed matches.
func (s *PairingService) PlanNextRound(ctx context.Context, class *models.RobotClass) (*RoundOutcome, error) {
	if class.Phase != models.ClassPhaseSwiss {
		return nil, fmt.Errorf("%w: class %d is in %s phase", ErrNoMoreRounds, class.ID, class.Phase)
	}
	round := class.CurrentRound + 1
	if round > class.SwissRounds {
		return nil, fmt.Errorf("%w: class %d played %d of %d rounds", ErrNoMoreRounds, class.ID, class.CurrentRound, class.SwissRounds)
	}

	matches, err := s.store.Matches.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of class %d: %w", class.ID, err)
	}
	if open := unfinishedSwiss(matches, class.CurrentRound); open > 0 {
		return nil, fmt.Errorf("%w: class %d round %d has %d open matches", ErrRoundInProgress, class.ID, class.CurrentRound, open)
	}

	teams, err := s.store.Teams.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams of class %d: %w", class.ID, err)
	}
	standings := brackets.ComputeStandings(class.ID, teams, matches)

	pairer := brackets.NewSwissPairer(brackets.PairingRules{Rounds: class.SwissRounds, TierGuardRounds: s.tierGuardRounds})
	plan, err := pairer.NextRound(round, standings)
	if err != nil {
		switch {
		case errors.Is(err, brackets.ErrNoTeams):
			return nil, fmt.Errorf("%w: class %d", ErrPairingImpossible, class.ID)
		case errors.Is(err, brackets.ErrRoundsExhausted):
			return nil, fmt.Errorf("%w: %v", ErrNoMoreRounds, err)
		}
		return nil, fmt.Errorf("failed to pair class %d round %d: %w", class.ID, round, err)
	}

	for _, w := range plan.Warnings {
		s.logger.Warn("swiss pairing relaxed", "class_id", class.ID, "round", round,
			"kind", w.Kind, "teams", w.TeamIDs, "detail", w.Message)
	}

	now := s.now()
	out := &RoundOutcome{Plan: plan}
	for _, p := range plan.Pairings {
		out.Matches = append(out.Matches, s.swissMatch(class, round, p, now))
	}
	return out, nil
}

func (s *PairingService) swissMatch(class *models.RobotClass, round int, p brackets.Pairing, now time.Time) *models.Match {
	m := &models.Match{
		TournamentID: class.TournamentID,
		ClassID:      class.ID,
		Kind:         models.MatchKindSwiss,
		Swiss: &models.SwissDetails{
			Round:            round,
			Bye:              p.Bye,
			RelaxedRepeat:    p.RelaxedRepeat,
			RelaxedTierGuard: p.RelaxedTierGuard,
		},
		Slot1:  models.TeamSlot(p.Team1),
		Status: models.MatchStatusPending,
	}
	if p.Bye {
		completed := now
		m.Slot2 = models.ByeSlot()
		m.Status = models.MatchStatusCompleted
		m.Completion = models.CompletionBye
		m.WinnerID = models.IntPtr(p.Team1)
		m.CompletedAt = &completed
		return m
	}
	m.Slot2 = models.TeamSlot(p.Team2)
	return m
}

// unfinishedSwiss counts the non-terminal Swiss matches of a round.
func unfinishedSwiss(matches []*models.Match, round int) int {
	open := 0
	for _, m := range matches {
		if m.Kind == models.MatchKindSwiss && m.Round() == round && !m.Status.Terminal() {
			open++
		}
	}
	return open
}

// SwissComplete reports whether the class has played and finished every configured round.
func SwissComplete(class *models.RobotClass, matches []*models.Match) bool {
	if class.Phase != models.ClassPhaseSwiss {
		return true
	}
	return class.CurrentRound >= class.SwissRounds && unfinishedSwiss(matches, class.CurrentRound) == 0
}
