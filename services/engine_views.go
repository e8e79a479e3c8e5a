package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

func (e *Engine) Tournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := e.store.Tournaments.GetByID(ctx, id)
	return t, translateRepoError(err)
}

func (e *Engine) Class(ctx context.Context, id int) (*models.RobotClass, error) {
	c, err := e.store.Classes.GetByID(ctx, id)
	return c, translateRepoError(err)
}

func (e *Engine) Match(ctx context.Context, id int) (*models.Match, error) {
	m, err := e.store.Matches.GetByID(ctx, id)
	return m, translateRepoError(err)
}

func (e *Engine) Teams(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	return e.store.Teams.ListByTournament(ctx, tournamentID)
}

// PendingMatches lists matches not yet played, in creation order.
func (e *Engine) PendingMatches(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	return e.store.Matches.ListByTournament(ctx, tournamentID,
		models.MatchStatusPending, models.MatchStatusScheduled, models.MatchStatusDelayed)
}

type ClassStatistics struct {
	ClassID  int                        `json:"class_id"`
	Phase    models.ClassPhase          `json:"phase"`
	ByStatus map[models.MatchStatus]int `json:"by_status"`
	Delays   int                        `json:"delays"`
	Relaxed  int                        `json:"relaxed_pairings"`
}

type MatchStatistics struct {
	TournamentID int                        `json:"tournament_id"`
	Total        int                        `json:"total"`
	ByStatus     map[models.MatchStatus]int `json:"by_status"`
	Classes      []ClassStatistics          `json:"classes"`
	Queued       int                        `json:"queued"`
}

func (e *Engine) MatchStatistics(ctx context.Context, tournamentID int) (*MatchStatistics, error) {
	classes, err := e.store.Classes.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes of tournament %d: %w", tournamentID, err)
	}
	matches, err := e.store.Matches.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of tournament %d: %w", tournamentID, err)
	}

	stats := &MatchStatistics{
		TournamentID: tournamentID,
		Total:        len(matches),
		ByStatus:     make(map[models.MatchStatus]int),
		Queued:       e.queueFor(tournamentID).Len(),
	}
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c.ID] = i
		stats.Classes = append(stats.Classes, ClassStatistics{
			ClassID:  c.ID,
			Phase:    c.Phase,
			ByStatus: make(map[models.MatchStatus]int),
		})
	}
	for _, m := range matches {
		stats.ByStatus[m.Status]++
		i, ok := index[m.ClassID]
		if !ok {
			continue
		}
		cs := &stats.Classes[i]
		cs.ByStatus[m.Status]++
		cs.Delays += len(m.DelayReasons)
		if m.Swiss != nil && (m.Swiss.RelaxedRepeat || m.Swiss.RelaxedTierGuard) {
			cs.Relaxed++
		}
	}
	return stats, nil
}

// ClassSnapshot is everything a class view needs in one read.
type ClassSnapshot struct {
	Class     *models.RobotClass `json:"class"`
	Standings []*models.Standing `json:"standings"`
	Matches   []*models.Match    `json:"matches"`
	Bracket   *models.Bracket    `json:"bracket,omitempty"`
}

func (e *Engine) ClassSnapshot(ctx context.Context, classID int) (*ClassSnapshot, error) {
	class, err := e.Class(ctx, classID)
	if err != nil {
		return nil, err
	}
	snap := &ClassSnapshot{Class: class}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Standings, err = e.pairing.Standings(gctx, classID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Matches, err = e.store.Matches.ListByClass(gctx, classID)
		return err
	})
	if class.Phase != models.ClassPhaseSwiss {
		g.Go(func() error {
			b, err := e.store.Brackets.GetByClass(gctx, classID)
			if errors.Is(err, repositories.ErrBracketNotFound) {
				return nil
			}
			snap.Bracket = b
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load snapshot of class %d: %w", classID, err)
	}
	return snap, nil
}
