package brackets

import (
	"fmt"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const defaultMaxSearchSteps = 20000

type PairingRules struct {
	// Rounds is the configured Swiss round count for the class.
	Rounds int
	// TierGuardRounds is how many opening rounds forbid novice-vs-advanced pairings.
	TierGuardRounds int
}

type PairingWarningKind string

const (
	WarningRelaxedRepeat    PairingWarningKind = "relaxed_repeat"
	WarningRelaxedTierGuard PairingWarningKind = "relaxed_tier_guard"
	WarningRepeatBye        PairingWarningKind = "repeat_bye"
)

type PairingWarning struct {
	Kind    PairingWarningKind `json:"kind"`
	TeamIDs []int              `json:"team_ids"`
	Message string             `json:"message"`
}

// Pairing is one line of a Swiss round. Team2 is zero for a bye.
type Pairing struct {
	Team1            int  `json:"team1"`
	Team2            int  `json:"team2,omitempty"`
	Bye              bool `json:"bye,omitempty"`
	RelaxedRepeat    bool `json:"relaxed_repeat,omitempty"`
	RelaxedTierGuard bool `json:"relaxed_tier_guard,omitempty"`
}

type RoundPlan struct {
	Round    int              `json:"round"`
	Pairings []Pairing        `json:"pairings"`
	Warnings []PairingWarning `json:"warnings,omitempty"`
}

// SwissPairer computes Swiss rounds from ranked standings.
type SwissPairer struct {
	rules    PairingRules
	maxSteps int
}

func NewSwissPairer(rules PairingRules) *SwissPairer {
	return &SwissPairer{rules: rules, maxSteps: defaultMaxSearchSteps}
}

// NextRound pairs the given round. Standings must be ranked (see RankStandings)
// and carry the opponents faced and byes received so far.
//
// Teams are paired greedily by rank, nearest partner first, so pairs form inside
// a score group before floating into the adjacent one. When no pairing satisfies
// every constraint the search allows the fewest relaxed pairs possible, preferring
// a repeat over a tier-guard violation at equal cost.
func (p *SwissPairer) NextRound(round int, standings []*models.Standing) (*RoundPlan, error) {
	if len(standings) == 0 {
		return nil, ErrNoTeams
	}
	if round > p.rules.Rounds {
		return nil, fmt.Errorf("%w: round %d of %d", ErrRoundsExhausted, round, p.rules.Rounds)
	}

	guard := round <= p.rules.TierGuardRounds
	candidates := byeCandidates(standings)
	pairs := len(standings) / 2

	maxTier := 0
	if guard {
		maxTier = pairs
	}
	for budget := 0; budget <= pairs+maxTier; budget++ {
		for repeat := min(budget, pairs); repeat >= 0; repeat-- {
			tier := budget - repeat
			if tier > maxTier {
				break
			}
			for _, bye := range candidates {
				pool := withoutTeam(standings, bye)
				search := &pairingSearch{
					pool:         pool,
					used:         make([]bool, len(pool)),
					tierGuard:    guard,
					repeatBudget: repeat,
					tierBudget:   tier,
					maxSteps:     p.maxSteps,
				}
				if !search.solve() {
					continue
				}
				return buildPlan(round, search.out, bye), nil
			}
		}
	}
	// Unreachable: with every constraint relaxed the greedy pass always succeeds.
	return nil, fmt.Errorf("swiss pairing search exhausted for round %d", round)
}

// byeCandidates returns a single nil candidate when the team count is even.
// Otherwise it lists the teams with the fewest byes, lowest-ranked first.
func byeCandidates(standings []*models.Standing) []*models.Standing {
	if len(standings)%2 == 0 {
		return []*models.Standing{nil}
	}
	fewest := standings[0].Byes
	for _, s := range standings {
		fewest = min(fewest, s.Byes)
	}
	out := make([]*models.Standing, 0, len(standings))
	for i := len(standings) - 1; i >= 0; i-- {
		if standings[i].Byes == fewest {
			out = append(out, standings[i])
		}
	}
	return out
}

func withoutTeam(standings []*models.Standing, skip *models.Standing) []*models.Standing {
	pool := make([]*models.Standing, 0, len(standings))
	for _, s := range standings {
		if s != skip {
			pool = append(pool, s)
		}
	}
	return pool
}

func buildPlan(round int, pairings []Pairing, bye *models.Standing) *RoundPlan {
	plan := &RoundPlan{Round: round, Pairings: pairings}
	for _, pr := range pairings {
		if pr.RelaxedRepeat {
			plan.Warnings = append(plan.Warnings, PairingWarning{
				Kind:    WarningRelaxedRepeat,
				TeamIDs: []int{pr.Team1, pr.Team2},
				Message: fmt.Sprintf("teams %d and %d meet again: no unplayed pairing was available", pr.Team1, pr.Team2),
			})
		}
		if pr.RelaxedTierGuard {
			plan.Warnings = append(plan.Warnings, PairingWarning{
				Kind:    WarningRelaxedTierGuard,
				TeamIDs: []int{pr.Team1, pr.Team2},
				Message: fmt.Sprintf("novice and advanced teams %d and %d paired in guarded round %d", pr.Team1, pr.Team2, round),
			})
		}
	}
	if bye != nil {
		plan.Pairings = append(plan.Pairings, Pairing{Team1: bye.TeamID, Bye: true})
		if bye.Byes > 0 {
			plan.Warnings = append(plan.Warnings, PairingWarning{
				Kind:    WarningRepeatBye,
				TeamIDs: []int{bye.TeamID},
				Message: fmt.Sprintf("team %d receives bye number %d: every team already had one", bye.TeamID, bye.Byes+1),
			})
		}
	}
	return plan
}

type pairingSearch struct {
	pool         []*models.Standing
	used         []bool
	tierGuard    bool
	repeatBudget int
	tierBudget   int
	steps        int
	maxSteps     int
	out          []Pairing
}

func (s *pairingSearch) solve() bool {
	i := s.firstFree()
	if i < 0 {
		return true
	}
	s.used[i] = true
	a := s.pool[i]
	for j := i + 1; j < len(s.pool); j++ {
		if s.used[j] {
			continue
		}
		s.steps++
		if s.steps > s.maxSteps {
			break
		}
		b := s.pool[j]
		repeat := a.HasFaced(b.TeamID)
		tier := s.tierGuard && tierClash(a.Tier, b.Tier)
		if (repeat && s.repeatBudget == 0) || (tier && s.tierBudget == 0) {
			continue
		}
		s.spend(repeat, tier, -1)
		s.used[j] = true
		s.out = append(s.out, Pairing{Team1: a.TeamID, Team2: b.TeamID, RelaxedRepeat: repeat, RelaxedTierGuard: tier})
		if s.solve() {
			return true
		}
		s.out = s.out[:len(s.out)-1]
		s.used[j] = false
		s.spend(repeat, tier, 1)
	}
	s.used[i] = false
	return false
}

func (s *pairingSearch) firstFree() int {
	for i, u := range s.used {
		if !u {
			return i
		}
	}
	return -1
}

func (s *pairingSearch) spend(repeat, tier bool, delta int) {
	if repeat {
		s.repeatBudget += delta
	}
	if tier {
		s.tierBudget += delta
	}
}

func tierClash(a, b models.ExperienceTier) bool {
	return (a == models.TierNovice && b == models.TierAdvanced) ||
		(a == models.TierAdvanced && b == models.TierNovice)
}
