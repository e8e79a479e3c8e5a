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

// BracketService builds a class's double-elimination bracket from its final
// Swiss standings and routes elimination results through it.
type BracketService struct {
	store     *repositories.Store
	generator brackets.BracketGenerator
	matches   *ConflictArbiter[*models.Match]
	logger    *slog.Logger
	now       func() time.Time
}

func NewBracketService(store *repositories.Store, matches *ConflictArbiter[*models.Match], logger *slog.Logger) *BracketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BracketService{
		store:     store,
		generator: brackets.NewDoubleEliminationGenerator(),
		matches:   matches,
		logger:    logger,
		now:       time.Now,
	}
}

// GeneratedBracket is an unsaved bracket with its matches, first-round byes
// already settled.
type GeneratedBracket struct {
	Bracket     *models.Bracket
	Matches     []*models.Match
	NowPlayable []*models.Match
}

// Generate seeds the bracket in standings order. Seeding must name every team
// of the class exactly once.
func (s *BracketService) Generate(ctx context.Context, class *models.RobotClass, seeding []int) (*GeneratedBracket, error) {
	teams, err := s.store.Teams.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams of class %d: %w", class.ID, err)
	}
	if len(seeding) != len(teams) {
		return nil, fmt.Errorf("%w: %d seeds for %d teams in class %d", ErrInvalidSeeding, len(seeding), len(teams), class.ID)
	}
	entered := make(map[int]bool, len(teams))
	for _, t := range teams {
		entered[t.ID] = true
	}
	for i, id := range seeding {
		if !entered[id] {
			return nil, fmt.Errorf("%w: seed %d is team %d, not entered in class %d", ErrInvalidSeeding, i+1, id, class.ID)
		}
	}

	bracket, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{ClassID: class.ID, Seeds: seeding})
	if err != nil {
		return nil, fmt.Errorf("failed to generate bracket for class %d: %w", class.ID, err)
	}

	out := &GeneratedBracket{Bracket: bracket}
	byNode := make(map[int]*models.Match, len(bracket.Nodes))
	for i := range bracket.Nodes {
		node := &bracket.Nodes[i]
		if node.Conditional {
			continue
		}
		m := brackets.NewEliminationMatch(bracket, node, class.TournamentID)
		byNode[node.ID] = m
		out.Matches = append(out.Matches, m)
	}

	res, err := brackets.ResolveInitialByes(bracket, byNode, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to settle byes for class %d: %w", class.ID, err)
	}
	for _, m := range out.Matches {
		if m.Playable() && !m.Status.Terminal() {
			out.NowPlayable = append(out.NowPlayable, m)
		}
	}
	s.logger.Info("bracket generated", "class_id", class.ID, "size", bracket.Size,
		"teams", len(seeding), "matches", len(out.Matches), "playable", len(out.NowPlayable),
		"bye_playable", len(res.NowPlayable))
	return out, nil
}

// CheckCorrection rejects a winner change on m when a downstream match already
// depends on its current outcome.
func (s *BracketService) CheckCorrection(ctx context.Context, m *models.Match) error {
	if m.Kind != models.MatchKindElimination || m.Elimination == nil {
		return nil
	}
	bracket, err := s.store.Brackets.GetByClass(ctx, m.ClassID)
	if err != nil {
		return fmt.Errorf("failed to load bracket of class %d: %w", m.ClassID, err)
	}
	classMatches, err := s.store.Matches.ListByClass(ctx, m.ClassID)
	if err != nil {
		return fmt.Errorf("failed to list matches of class %d: %w", m.ClassID, err)
	}
	byNode := brackets.IndexByNode(classMatches)
	node, ok := bracket.Node(m.Elimination.NodeID)
	if !ok {
		return fmt.Errorf("%w: %d", brackets.ErrUnknownNode, m.Elimination.NodeID)
	}

	if node.Side == models.BracketGrandFinal {
		if _, reset := bracket.GrandFinal(); reset != nil {
			if _, created := byNode[reset.ID]; created && reset.ID != node.ID {
				return fmt.Errorf("%w: bracket reset already created", ErrCorrectionBlocked)
			}
		}
	}
	return checkDownstream(bracket, byNode, []*models.Link{node.WinnerTo, node.LoserTo})
}

// checkDownstream walks the targets of a corrected outcome. A target that
// completed on a bye is re-routed by the correction, so the walk continues
// through its winner edge instead of stopping there.
func checkDownstream(bracket *models.Bracket, byNode map[int]*models.Match, links []*models.Link) error {
	for _, link := range links {
		if link == nil {
			continue
		}
		target, exists := byNode[link.NodeID]
		if !exists {
			continue
		}
		if target.Status.Terminal() && target.Completion == models.CompletionBye {
			next, ok := bracket.Node(link.NodeID)
			if !ok {
				return fmt.Errorf("%w: %d", brackets.ErrUnknownNode, link.NodeID)
			}
			if err := checkDownstream(bracket, byNode, []*models.Link{next.WinnerTo}); err != nil {
				return err
			}
			continue
		}
		switch target.Status {
		case models.MatchStatusPending, models.MatchStatusScheduled, models.MatchStatusDelayed:
		default:
			return fmt.Errorf("%w: match %d is %s", ErrCorrectionBlocked, target.ID, target.Status)
		}
	}
	return nil
}

// Advancement is what a terminal elimination result changed downstream.
type Advancement struct {
	Changed     []*models.Match
	NowPlayable []*models.Match
	Reset       *models.Match
	ChampionID  *int
}

// Advance routes the stored outcome of m into the downstream matches and
// persists them. correction allows replacing slots filled by an earlier outcome.
func (s *BracketService) Advance(ctx context.Context, m *models.Match, correction bool) (*Advancement, error) {
	bracket, err := s.store.Brackets.GetByClass(ctx, m.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bracket of class %d: %w", m.ClassID, err)
	}
	classMatches, err := s.store.Matches.ListByClass(ctx, m.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of class %d: %w", m.ClassID, err)
	}
	byNode := brackets.IndexByNode(classMatches)
	byNode[m.Elimination.NodeID] = m

	res, err := brackets.Advance(bracket, byNode, m.Elimination.NodeID, brackets.AdvanceOptions{
		Overwrite: correction,
		Now:       s.now(),
	})
	if err != nil {
		if errors.Is(err, brackets.ErrSlotConflict) {
			return nil, fmt.Errorf("%w: %v", ErrCorrectionBlocked, err)
		}
		return nil, fmt.Errorf("failed to advance match %d: %w", m.ID, err)
	}

	out := &Advancement{ChampionID: res.ChampionID}
	stored := make(map[int]*models.Match, len(res.Changed))
	for _, changed := range res.Changed {
		saved, err := s.persistRouting(ctx, changed)
		if err != nil {
			return nil, err
		}
		stored[saved.ID] = saved
		out.Changed = append(out.Changed, saved)
	}
	for _, p := range res.NowPlayable {
		if saved, ok := stored[p.ID]; ok {
			out.NowPlayable = append(out.NowPlayable, saved)
		}
	}

	if res.ResetNeeded {
		reset, err := brackets.ResetMatch(bracket, m)
		if err != nil {
			return nil, fmt.Errorf("failed to build reset for class %d: %w", m.ClassID, err)
		}
		if err := s.store.Matches.Create(ctx, reset); err != nil {
			return nil, fmt.Errorf("failed to store reset match for class %d: %w", m.ClassID, translateRepoError(err))
		}
		s.logger.Info("bracket reset triggered", "class_id", m.ClassID, "match_id", reset.ID)
		out.Reset = reset
		out.NowPlayable = append(out.NowPlayable, reset)
	}

	// Bye chains can finish the bracket without the final being played here.
	if out.ChampionID == nil {
		byNode[m.Elimination.NodeID] = m
		for _, saved := range out.Changed {
			byNode[saved.Elimination.NodeID] = saved
		}
		if champion, ok := brackets.Champion(bracket, byNode); ok {
			out.ChampionID = models.IntPtr(champion)
		}
	}
	return out, nil
}

// persistRouting writes the routed slots of a downstream match on top of its
// latest stored version. Only bracket-owned fields are copied so a concurrent
// delay or reschedule on that match is preserved.
func (s *BracketService) persistRouting(ctx context.Context, routed *models.Match) (*models.Match, error) {
	saved, err := s.matches.ApplyLatest(ctx, routed.ID, "advance_bracket", func(current *models.Match) error {
		if current.Status.Terminal() && current.Completion != models.CompletionBye {
			return fmt.Errorf("%w: match %d already %s", ErrCorrectionBlocked, current.ID, current.Status)
		}
		current.Slot1 = routed.Slot1
		current.Slot2 = routed.Slot2
		if routed.Completion == models.CompletionBye && routed.Status.Terminal() {
			current.Status = routed.Status
			current.WinnerID = routed.WinnerID
			current.Completion = routed.Completion
			current.CompletedAt = routed.CompletedAt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to route into match %d: %w", routed.ID, err)
	}
	return saved, nil
}
