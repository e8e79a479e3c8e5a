package brackets

import (
	"fmt"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// InitialSlots resolves a node's feeders into match slots at generation time.
// A seed beyond the number of entrants is a bye.
func InitialSlots(b *models.Bracket, node *models.BracketNode) [2]models.Slot {
	var slots [2]models.Slot
	for i, f := range node.Feeders {
		switch f.Kind {
		case models.FeederSeed:
			if f.Seed >= 1 && f.Seed <= len(b.Seeds) {
				slots[i] = models.TeamSlot(b.Seeds[f.Seed-1])
			} else {
				slots[i] = models.ByeSlot()
			}
		case models.FeederWinnerOf:
			slots[i] = models.PendingSlot(f.NodeID, models.OutcomeWinner)
		case models.FeederLoserOf:
			slots[i] = models.PendingSlot(f.NodeID, models.OutcomeLoser)
		}
	}
	return slots
}

// NewEliminationMatch builds the unsaved match for a node.
func NewEliminationMatch(b *models.Bracket, node *models.BracketNode, tournamentID int) *models.Match {
	slots := InitialSlots(b, node)
	return &models.Match{
		TournamentID: tournamentID,
		ClassID:      b.ClassID,
		Kind:         models.MatchKindElimination,
		Elimination: &models.EliminationDetails{
			Side:     node.Side,
			Round:    node.Round,
			Position: node.Position,
			NodeID:   node.ID,
			Reset:    node.Conditional,
		},
		Slot1:  slots[0],
		Slot2:  slots[1],
		Status: models.MatchStatusPending,
	}
}

// ResetTriggered reports whether a completed first grand final was won by the
// losers-bracket side, which forces the bracket reset match.
func ResetTriggered(final *models.Match) bool {
	return final.Status.Terminal() && final.WinnerID != nil && *final.WinnerID == final.Slot2.Team()
}

// AdvanceOptions tune Advance. Overwrite lets a correction replace a slot that
// was already populated, as long as the downstream match has not started.
type AdvanceOptions struct {
	Overwrite bool
	Now       time.Time
}

type AdvanceResult struct {
	// Changed lists downstream matches whose slots or status changed, in order.
	Changed []*models.Match
	// NowPlayable lists matches that gained their second concrete team.
	NowPlayable []*models.Match
	// ResetNeeded is set when the reset match must be created (see ResetTriggered).
	ResetNeeded bool
	// ChampionID is set once the bracket has a final winner.
	ChampionID *int
}

// Advance routes the outcome of the terminal match at nodeID through the
// bracket edges. byNode maps node ids to the class's elimination matches and is
// mutated in place. Matches that end up facing a bye complete immediately and
// are routed in turn.
func Advance(b *models.Bracket, byNode map[int]*models.Match, nodeID int, opts AdvanceOptions) (*AdvanceResult, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	res := &AdvanceResult{}
	seen := make(map[*models.Match]bool)
	markChanged := func(m *models.Match) {
		if !seen[m] {
			seen[m] = true
			res.Changed = append(res.Changed, m)
		}
	}

	queue := []int{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, ok := b.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
		}
		m, ok := byNode[id]
		if !ok || !m.Status.Terminal() {
			continue
		}

		if node.Side == models.BracketGrandFinal {
			if node.Conditional {
				res.ChampionID = m.WinnerID
				continue
			}
			if !ResetTriggered(m) {
				res.ChampionID = m.WinnerID
				continue
			}
		}

		outcomes := []struct {
			link *models.Link
			slot func() (models.Slot, bool)
		}{
			{node.WinnerTo, m.WinnerSlot},
			{node.LoserTo, m.LoserSlot},
		}
		for _, o := range outcomes {
			if o.link == nil {
				continue
			}
			value, ok := o.slot()
			if !ok {
				// Forfeit without a winner: nothing flows until an organizer resolves it.
				continue
			}
			target, exists := byNode[o.link.NodeID]
			if !exists {
				targetNode, _ := b.Node(o.link.NodeID)
				if targetNode != nil && targetNode.Conditional {
					res.ResetNeeded = true
					continue
				}
				return nil, fmt.Errorf("%w: no match for node %d", ErrUnknownNode, o.link.NodeID)
			}
			changed, err := fillSlot(target, o.link.Slot, value, opts.Overwrite)
			if err != nil {
				return nil, err
			}
			if !changed {
				continue
			}
			markChanged(target)
			target.UpdatedAt = opts.Now

			if autoCompleteBye(target, opts.Now) {
				queue = append(queue, o.link.NodeID)
			} else if target.Playable() && !target.Status.Terminal() {
				res.NowPlayable = append(res.NowPlayable, target)
			}
		}
	}
	return res, nil
}

func fillSlot(m *models.Match, slot int, value models.Slot, overwrite bool) (bool, error) {
	current := &m.Slot1
	if slot == 2 {
		current = &m.Slot2
	}
	if current.Equal(value) {
		return false, nil
	}
	byeDone := m.Status.Terminal() && m.Completion == models.CompletionBye
	if current.Resolved() {
		started := m.Status != models.MatchStatusPending && m.Status != models.MatchStatusScheduled &&
			m.Status != models.MatchStatusDelayed && !byeDone
		if !overwrite || started {
			return false, fmt.Errorf("%w: match %d slot %d", ErrSlotConflict, m.ID, slot)
		}
	}
	*current = value
	if byeDone {
		// reopened so autoCompleteBye settles it again with the new team
		m.Status = models.MatchStatusPending
		m.WinnerID = nil
		m.Completion = ""
		m.CompletedAt = nil
	}
	return true, nil
}

// autoCompleteBye completes a match whose slots are resolved and include a bye.
func autoCompleteBye(m *models.Match, now time.Time) bool {
	if m.Status.Terminal() || !m.Slot1.Resolved() || !m.Slot2.Resolved() {
		return false
	}
	if !m.Slot1.IsBye() && !m.Slot2.IsBye() {
		return false
	}
	m.WinnerID = nil
	if m.Slot1.IsTeam() {
		m.WinnerID = models.IntPtr(m.Slot1.Team())
	} else if m.Slot2.IsTeam() {
		m.WinnerID = models.IntPtr(m.Slot2.Team())
	}
	m.Status = models.MatchStatusCompleted
	m.Completion = models.CompletionBye
	m.CompletedAt = &now
	return true
}

// ResolveInitialByes completes every first-round bye in a freshly generated
// bracket and routes the results, so the stored bracket starts with byes settled.
func ResolveInitialByes(b *models.Bracket, byNode map[int]*models.Match, now time.Time) (*AdvanceResult, error) {
	total := &AdvanceResult{}
	for _, node := range b.Nodes {
		m, ok := byNode[node.ID]
		if !ok || !autoCompleteBye(m, now) {
			continue
		}
		res, err := Advance(b, byNode, node.ID, AdvanceOptions{Now: now})
		if err != nil {
			return nil, err
		}
		total.NowPlayable = append(total.NowPlayable, res.NowPlayable...)
	}
	return total, nil
}

// Champion returns the bracket winner once the grand final (and reset, if it
// was triggered) is terminal.
func Champion(b *models.Bracket, byNode map[int]*models.Match) (int, bool) {
	finalNode, resetNode := b.GrandFinal()
	if finalNode == nil {
		return 0, false
	}
	final, ok := byNode[finalNode.ID]
	if !ok || !final.Status.Terminal() || final.WinnerID == nil {
		return 0, false
	}
	if !ResetTriggered(final) {
		return *final.WinnerID, true
	}
	if resetNode == nil {
		return 0, false
	}
	reset, ok := byNode[resetNode.ID]
	if !ok || !reset.Status.Terminal() || reset.WinnerID == nil {
		return 0, false
	}
	return *reset.WinnerID, true
}

// ResetMatch builds the bracket reset match once the first grand final has been
// won by the losers-bracket side: same two teams, winners-bracket team in slot 1.
func ResetMatch(b *models.Bracket, final *models.Match) (*models.Match, error) {
	_, resetNode := b.GrandFinal()
	if resetNode == nil {
		return nil, fmt.Errorf("%w: bracket %d has no reset node", ErrUnknownNode, b.ID)
	}
	if !ResetTriggered(final) {
		return nil, fmt.Errorf("grand final %d did not trigger a reset", final.ID)
	}
	m := NewEliminationMatch(b, resetNode, final.TournamentID)
	m.Slot1 = models.TeamSlot(final.Slot1.Team())
	m.Slot2 = models.TeamSlot(final.Slot2.Team())
	return m, nil
}

// IndexByNode maps the elimination matches of a class by bracket node.
func IndexByNode(matches []*models.Match) map[int]*models.Match {
	byNode := make(map[int]*models.Match, len(matches))
	for _, m := range matches {
		if m.Kind == models.MatchKindElimination && m.Elimination != nil {
			byNode[m.Elimination.NodeID] = m
		}
	}
	return byNode
}
