package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

// WorkKind names the organizer action a class is waiting for.
type WorkKind string

const (
	WorkNextRound        WorkKind = "next_round"
	WorkStartElimination WorkKind = "start_elimination"
)

type ClassWork struct {
	ClassID int      `json:"class_id"`
	Kind    WorkKind `json:"kind"`
	Round   int      `json:"round,omitempty"`
}

// ClassCoordinator orders the classes of a tournament under its rotation
// policy and enforces the Swiss-to-elimination gate.
type ClassCoordinator struct {
	store  *repositories.Store
	logger *slog.Logger
}

func NewClassCoordinator(store *repositories.Store, logger *slog.Logger) *ClassCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassCoordinator{store: store, logger: logger}
}

type tournamentState struct {
	tournament *models.Tournament
	classes    []*models.RobotClass
	matches    map[int][]*models.Match // by class
}

func (c *ClassCoordinator) load(ctx context.Context, tournamentID int) (*tournamentState, error) {
	t, err := c.store.Tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	classes, err := c.store.Classes.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes of tournament %d: %w", tournamentID, err)
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return classRank(t, classes[i]) < classRank(t, classes[j])
	})
	matches, err := c.store.Matches.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of tournament %d: %w", tournamentID, err)
	}
	state := &tournamentState{tournament: t, classes: classes, matches: make(map[int][]*models.Match)}
	for _, m := range matches {
		state.matches[m.ClassID] = append(state.matches[m.ClassID], m)
	}
	return state, nil
}

// classRank orders classes by the tournament's class list; unlisted classes go last by id.
func classRank(t *models.Tournament, class *models.RobotClass) int {
	if order := t.ClassOrder(class.ID); order >= 0 {
		return order
	}
	return len(t.ClassIDs) + class.ID
}

// NextEligibleWork lists the classes ready for their next organizer action,
// in the order the rotation wants them handled. Under round-robin only the
// classes furthest behind in Swiss may pair their next round.
func (c *ClassCoordinator) NextEligibleWork(ctx context.Context, tournamentID int) ([]ClassWork, error) {
	state, err := c.load(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	lowestRound := -1
	for _, class := range state.classes {
		if class.Phase == models.ClassPhaseSwiss && class.CurrentRound < class.SwissRounds {
			if lowestRound < 0 || class.CurrentRound < lowestRound {
				lowestRound = class.CurrentRound
			}
		}
	}
	allSwissDone := c.allSwissComplete(state)

	var work []ClassWork
	for _, class := range state.classes {
		if class.Phase != models.ClassPhaseSwiss {
			continue
		}
		matches := state.matches[class.ID]
		if unfinishedSwiss(matches, class.CurrentRound) > 0 {
			continue
		}
		if class.CurrentRound < class.SwissRounds {
			if state.tournament.Rotation == models.RotationRoundRobin && class.CurrentRound != lowestRound {
				continue
			}
			work = append(work, ClassWork{ClassID: class.ID, Kind: WorkNextRound, Round: class.CurrentRound + 1})
			continue
		}
		if state.tournament.Rotation == models.RotationGated && !allSwissDone {
			continue
		}
		work = append(work, ClassWork{ClassID: class.ID, Kind: WorkStartElimination})
	}
	return work, nil
}

func (c *ClassCoordinator) allSwissComplete(state *tournamentState) bool {
	for _, class := range state.classes {
		if !SwissComplete(class, state.matches[class.ID]) {
			return false
		}
	}
	return true
}

// CheckEliminationStart rejects starting elimination for class while the gate
// or its own Swiss phase forbids it.
func (c *ClassCoordinator) CheckEliminationStart(ctx context.Context, class *models.RobotClass) error {
	if class.Phase != models.ClassPhaseSwiss {
		return fmt.Errorf("%w: class %d is already in %s phase", ErrPhaseGateViolation, class.ID, class.Phase)
	}
	state, err := c.load(ctx, class.TournamentID)
	if err != nil {
		return err
	}
	matches := state.matches[class.ID]
	if class.CurrentRound < class.SwissRounds {
		return fmt.Errorf("%w: class %d played %d of %d swiss rounds", ErrPhaseGateViolation, class.ID, class.CurrentRound, class.SwissRounds)
	}
	if open := unfinishedSwiss(matches, class.CurrentRound); open > 0 {
		return fmt.Errorf("%w: class %d round %d has %d open matches", ErrRoundInProgress, class.ID, class.CurrentRound, open)
	}
	if state.tournament.Rotation != models.RotationGated {
		return nil
	}
	for _, other := range state.classes {
		if other.ID == class.ID {
			continue
		}
		if !SwissComplete(other, state.matches[other.ID]) {
			c.logger.Warn("elimination start blocked by gate", "class_id", class.ID, "blocking_class_id", other.ID)
			return fmt.Errorf("%w: class %d is still mid-swiss", ErrPhaseGateViolation, other.ID)
		}
	}
	return nil
}

// DispatchFilter builds the rotation filter for the schedule queue. Under
// round-robin a Swiss match of round r waits while another class still has an
// unfinished Swiss match of an earlier round.
func (c *ClassCoordinator) DispatchFilter(ctx context.Context, tournamentID int) (DispatchFilter, error) {
	state, err := c.load(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if state.tournament.Rotation != models.RotationRoundRobin {
		return nil, nil
	}
	openRound := make(map[int]int) // class id -> lowest unfinished swiss round
	for classID, matches := range state.matches {
		for _, m := range matches {
			if m.Kind != models.MatchKindSwiss || m.Status.Terminal() {
				continue
			}
			if r, ok := openRound[classID]; !ok || m.Round() < r {
				openRound[classID] = m.Round()
			}
		}
	}
	return func(m *models.Match) bool {
		if m.Kind != models.MatchKindSwiss {
			return true
		}
		for classID, r := range openRound {
			if classID != m.ClassID && r < m.Round() {
				return false
			}
		}
		return true
	}, nil
}

// RollUpPhase derives the tournament phase from its classes.
func RollUpPhase(classes []*models.RobotClass) models.TournamentPhase {
	if len(classes) == 0 {
		return models.TournamentPhaseSetup
	}
	complete, elimination, started := 0, false, false
	for _, class := range classes {
		switch class.Phase {
		case models.ClassPhaseComplete:
			complete++
			elimination = true
		case models.ClassPhaseElimination:
			elimination = true
		}
		if class.CurrentRound > 0 {
			started = true
		}
	}
	switch {
	case complete == len(classes):
		return models.TournamentPhaseComplete
	case elimination:
		return models.TournamentPhaseElimination
	case started:
		return models.TournamentPhaseSwiss
	}
	return models.TournamentPhaseSetup
}
