package brackets

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const testClass = 7

func makeTeams(n int, tiers ...models.ExperienceTier) []*models.Team {
	teams := make([]*models.Team, n)
	for i := range teams {
		tier := models.TierIntermediate
		if i < len(tiers) {
			tier = tiers[i]
		}
		teams[i] = &models.Team{
			ID:                i + 1,
			Name:              fmt.Sprintf("team-%d", i+1),
			Tier:              tier,
			ClassIDs:          []int{testClass},
			RegistrationOrder: i + 1,
		}
	}
	return teams
}

// playRound turns a plan into terminal matches; the lower team id wins.
func playRound(plan *RoundPlan, seq *int) []*models.Match {
	var out []*models.Match
	for _, p := range plan.Pairings {
		*seq++
		m := &models.Match{
			ID:       *seq,
			ClassID:  testClass,
			Kind:     models.MatchKindSwiss,
			Swiss:    &models.SwissDetails{Round: plan.Round, Bye: p.Bye},
			Slot1:    models.TeamSlot(p.Team1),
			Status:   models.MatchStatusCompleted,
			Sequence: *seq,
		}
		if p.Bye {
			m.Slot2 = models.ByeSlot()
			m.WinnerID = models.IntPtr(p.Team1)
		} else {
			m.Slot2 = models.TeamSlot(p.Team2)
			m.WinnerID = models.IntPtr(min(p.Team1, p.Team2))
		}
		out = append(out, m)
	}
	return out
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func TestSwissPairer_NextRound_FiveTeamScenario(t *testing.T) {
	// GIVEN a 5-team class with 3 configured rounds
	teams := makeTeams(5)
	pairer := NewSwissPairer(PairingRules{Rounds: 3})
	var history []*models.Match
	seq := 0

	// WHEN round 1 is paired from empty standings
	plan, err := pairer.NextRound(1, ComputeStandings(testClass, teams, history))
	require.NoError(t, err)

	// THEN it is 1v2, 3v4 and team 5 sits out
	assert.Equal(t, []Pairing{
		{Team1: 1, Team2: 2},
		{Team1: 3, Team2: 4},
		{Team1: 5, Bye: true},
	}, plan.Pairings)
	assert.Empty(t, plan.Warnings)
	history = append(history, playRound(plan, &seq)...)

	// WHEN round 2 is paired
	plan, err = pairer.NextRound(2, ComputeStandings(testClass, teams, history))
	require.NoError(t, err)

	// THEN no round-1 pairing repeats and team 5 does not get a second bye
	for _, p := range plan.Pairings {
		if p.Bye {
			assert.NotEqual(t, 5, p.Team1)
			continue
		}
		assert.NotEqual(t, pairKey(1, 2), pairKey(p.Team1, p.Team2))
		assert.NotEqual(t, pairKey(3, 4), pairKey(p.Team1, p.Team2))
	}
	assert.Equal(t, Pairing{Team1: 4, Bye: true}, plan.Pairings[len(plan.Pairings)-1])
	history = append(history, playRound(plan, &seq)...)

	// WHEN round 3 is paired
	plan, err = pairer.NextRound(3, ComputeStandings(testClass, teams, history))
	require.NoError(t, err)
	history = append(history, playRound(plan, &seq)...)

	// THEN three different teams received the three byes
	byes := map[int]bool{}
	for _, m := range history {
		if m.Swiss.Bye {
			assert.False(t, byes[m.Slot1.Team()], "team %d got a second bye", m.Slot1.Team())
			byes[m.Slot1.Team()] = true
		}
	}
	assert.Len(t, byes, 3)

	// AND the fourth round is refused
	_, err = pairer.NextRound(4, ComputeStandings(testClass, teams, history))
	assert.ErrorIs(t, err, ErrRoundsExhausted)
}

func TestSwissPairer_NextRound_NoRepeatsAcrossRounds(t *testing.T) {
	for _, n := range []int{4, 6, 7, 8, 11, 16} {
		t.Run(fmt.Sprintf("%d teams", n), func(t *testing.T) {
			teams := makeTeams(n)
			rounds := 3
			pairer := NewSwissPairer(PairingRules{Rounds: rounds})
			var history []*models.Match
			seq := 0
			seen := map[[2]int]bool{}

			for r := 1; r <= rounds; r++ {
				plan, err := pairer.NextRound(r, ComputeStandings(testClass, teams, history))
				require.NoError(t, err)
				assert.Empty(t, plan.Warnings)

				inRound := map[int]bool{}
				for _, p := range plan.Pairings {
					assert.False(t, inRound[p.Team1])
					inRound[p.Team1] = true
					if p.Bye {
						continue
					}
					assert.False(t, inRound[p.Team2])
					inRound[p.Team2] = true
					key := pairKey(p.Team1, p.Team2)
					assert.False(t, seen[key], "pair %v repeated in round %d", key, r)
					seen[key] = true
				}
				assert.Len(t, inRound, n)
				history = append(history, playRound(plan, &seq)...)
			}
		})
	}
}

func TestSwissPairer_NextRound_PoolExhaustedFlagsRepeat(t *testing.T) {
	// GIVEN 4 teams that have each met all three possible opponents
	teams := makeTeams(4)
	pairer := NewSwissPairer(PairingRules{Rounds: 4})
	var history []*models.Match
	seq := 0
	for r := 1; r <= 3; r++ {
		plan, err := pairer.NextRound(r, ComputeStandings(testClass, teams, history))
		require.NoError(t, err)
		require.Empty(t, plan.Warnings)
		history = append(history, playRound(plan, &seq)...)
	}

	// WHEN a fourth round is requested
	plan, err := pairer.NextRound(4, ComputeStandings(testClass, teams, history))

	// THEN it still pairs everyone, flagging both forced repeats
	require.NoError(t, err)
	require.Len(t, plan.Pairings, 2)
	for _, p := range plan.Pairings {
		assert.True(t, p.RelaxedRepeat)
	}
	require.Len(t, plan.Warnings, 2)
	assert.Equal(t, WarningRelaxedRepeat, plan.Warnings[0].Kind)
}

func TestSwissPairer_NextRound_TierGuard(t *testing.T) {
	// GIVEN novices ranked next to advanced teams
	teams := makeTeams(4, models.TierNovice, models.TierAdvanced, models.TierNovice, models.TierAdvanced)
	standings := ComputeStandings(testClass, teams, nil)

	t.Run("guarded round avoids the clash", func(t *testing.T) {
		plan, err := NewSwissPairer(PairingRules{Rounds: 3, TierGuardRounds: 1}).NextRound(1, standings)
		require.NoError(t, err)
		assert.Equal(t, []Pairing{{Team1: 1, Team2: 3}, {Team1: 2, Team2: 4}}, plan.Pairings)
		assert.Empty(t, plan.Warnings)
	})

	t.Run("unguarded round pairs by rank", func(t *testing.T) {
		plan, err := NewSwissPairer(PairingRules{Rounds: 3, TierGuardRounds: 1}).NextRound(2, standings)
		require.NoError(t, err)
		assert.Equal(t, []Pairing{{Team1: 1, Team2: 2}, {Team1: 3, Team2: 4}}, plan.Pairings)
	})

	t.Run("impossible guard is relaxed and flagged", func(t *testing.T) {
		lopsided := ComputeStandings(testClass, makeTeams(2, models.TierNovice, models.TierAdvanced), nil)
		plan, err := NewSwissPairer(PairingRules{Rounds: 3, TierGuardRounds: 2}).NextRound(1, lopsided)
		require.NoError(t, err)
		require.Len(t, plan.Pairings, 1)
		assert.True(t, plan.Pairings[0].RelaxedTierGuard)
		assert.False(t, plan.Pairings[0].RelaxedRepeat)
		require.Len(t, plan.Warnings, 1)
		assert.Equal(t, WarningRelaxedTierGuard, plan.Warnings[0].Kind)
	})
}

func TestSwissPairer_NextRound_EdgeCounts(t *testing.T) {
	pairer := NewSwissPairer(PairingRules{Rounds: 3})

	_, err := pairer.NextRound(1, nil)
	assert.True(t, errors.Is(err, ErrNoTeams))

	plan, err := pairer.NextRound(1, ComputeStandings(testClass, makeTeams(1), nil))
	require.NoError(t, err)
	assert.Equal(t, []Pairing{{Team1: 1, Bye: true}}, plan.Pairings)
}

func TestSwissPairer_NextRound_RepeatByeWarnsAfterFullCycle(t *testing.T) {
	// GIVEN 3 teams over 4 rounds: every team has had a bye after round 3
	teams := makeTeams(3)
	pairer := NewSwissPairer(PairingRules{Rounds: 4})
	var history []*models.Match
	seq := 0
	for r := 1; r <= 3; r++ {
		plan, err := pairer.NextRound(r, ComputeStandings(testClass, teams, history))
		require.NoError(t, err)
		history = append(history, playRound(plan, &seq)...)
	}

	plan, err := pairer.NextRound(4, ComputeStandings(testClass, teams, history))
	require.NoError(t, err)

	var kinds []PairingWarningKind
	for _, w := range plan.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, WarningRepeatBye)
}
