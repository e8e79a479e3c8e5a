package brackets

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

func seedsOf(n int) []int {
	seeds := make([]int, n)
	for i := range seeds {
		seeds[i] = 101 + i
	}
	return seeds
}

func generate(t *testing.T, n int) *models.Bracket {
	t.Helper()
	b, err := NewDoubleEliminationGenerator().GenerateBracket(context.Background(), GenerateBracketParams{ClassID: testClass, Seeds: seedsOf(n)})
	require.NoError(t, err)
	return b
}

// materialize creates one match per unconditional node, ids = node id + 1.
func materialize(b *models.Bracket) map[int]*models.Match {
	byNode := map[int]*models.Match{}
	for i := range b.Nodes {
		node := &b.Nodes[i]
		if node.Conditional {
			continue
		}
		m := NewEliminationMatch(b, node, 1)
		m.ID = node.ID + 1
		byNode[node.ID] = m
	}
	return byNode
}

func complete(m *models.Match, winner int) {
	m.Status = models.MatchStatusCompleted
	m.Completion = models.CompletionCompleted
	m.WinnerID = models.IntPtr(winner)
}

func TestSeedPlacement(t *testing.T) {
	assert.Equal(t, []int{1, 2}, SeedPlacement(2))
	assert.Equal(t, []int{1, 4, 2, 3}, SeedPlacement(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, SeedPlacement(8))
}

func TestDoubleEliminationGenerator_InvalidSeeding(t *testing.T) {
	g := NewDoubleEliminationGenerator()
	ctx := context.Background()

	_, err := g.GenerateBracket(ctx, GenerateBracketParams{Seeds: []int{1}})
	assert.ErrorIs(t, err, ErrInvalidSeeding)

	_, err = g.GenerateBracket(ctx, GenerateBracketParams{Seeds: []int{1, 2, 2}})
	assert.ErrorIs(t, err, ErrInvalidSeeding)

	_, err = g.GenerateBracket(ctx, GenerateBracketParams{Seeds: []int{1, 0}})
	assert.ErrorIs(t, err, ErrInvalidSeeding)
}

func TestDoubleEliminationGenerator_NodeCounts(t *testing.T) {
	cases := []struct {
		teams, size, winners, losers int
	}{
		{2, 2, 1, 0},
		{3, 4, 3, 2},
		{4, 4, 3, 2},
		{5, 8, 7, 6},
		{8, 8, 7, 6},
		{12, 16, 15, 14},
	}
	for _, tc := range cases {
		b := generate(t, tc.teams)
		counts := map[models.BracketSide]int{}
		for _, n := range b.Nodes {
			counts[n.Side]++
		}
		assert.Equal(t, tc.size, b.Size, "teams=%d", tc.teams)
		assert.Equal(t, tc.winners, counts[models.BracketWinners], "teams=%d", tc.teams)
		assert.Equal(t, tc.losers, counts[models.BracketLosers], "teams=%d", tc.teams)
		assert.Equal(t, 2, counts[models.BracketGrandFinal], "teams=%d", tc.teams)
	}
}

func TestDoubleEliminationGenerator_EightTeamScenario(t *testing.T) {
	// GIVEN seeds A..H
	const (
		A = 101 + iota
		B
		C
		D
		E
		F
		G
		H
	)
	b := generate(t, 8)
	byNode := materialize(b)

	// THEN winners round 1 is A-H, D-E, B-G, C-F in bracket order
	var firstRound [][2]int
	for _, n := range b.Nodes {
		if n.Side == models.BracketWinners && n.Round == 1 {
			m := byNode[n.ID]
			firstRound = append(firstRound, [2]int{m.Slot1.Team(), m.Slot2.Team()})
		}
	}
	if diff := cmp.Diff([][2]int{{A, H}, {D, E}, {B, G}, {C, F}}, firstRound); diff != "" {
		t.Fatalf("first round mismatch (-want +got):\n%s", diff)
	}

	// WHEN H upsets A and G beats B
	now := time.Now()
	complete(byNode[0], H)
	_, err := Advance(b, byNode, 0, AdvanceOptions{Now: now})
	require.NoError(t, err)
	complete(byNode[2], G)
	res, err := Advance(b, byNode, 2, AdvanceOptions{Now: now})
	require.NoError(t, err)

	// THEN A's next match is in the losers bracket against B
	var losersOpener *models.Match
	for _, m := range byNode {
		if m.Elimination.Side == models.BracketLosers && m.HasTeam(A) {
			losersOpener = m
		}
	}
	require.NotNil(t, losersOpener)
	assert.Equal(t, 1, losersOpener.Elimination.Round)
	assert.Equal(t, B, losersOpener.Opponent(A))
	assert.Contains(t, res.NowPlayable, losersOpener)

	// AND the drop slot for H's side of winners round 2 is not fed into A's path
	aNode := b.Nodes[losersOpener.Elimination.NodeID]
	next := b.Nodes[aNode.WinnerTo.NodeID]
	hRound2 := b.Nodes[b.Nodes[0].WinnerTo.NodeID]
	assert.NotEqual(t, hRound2.LoserTo.NodeID, next.ID)
}

func TestDoubleEliminationGenerator_RoundTrip(t *testing.T) {
	for n := 2; n <= 17; n++ {
		for _, mode := range []string{"favourites", "upsets", "random"} {
			t.Run(fmt.Sprintf("%d teams %s", n, mode), func(t *testing.T) {
				b := generate(t, n)
				rng := rand.New(rand.NewSource(int64(n)))
				pick := func(m *models.Match) int {
					a, c := m.Slot1.Team(), m.Slot2.Team()
					switch mode {
					case "favourites":
						return min(a, c)
					case "upsets":
						return max(a, c)
					}
					if rng.Intn(2) == 0 {
						return a
					}
					return c
				}

				champion, byNode := simulate(t, b, pick)

				assert.NotZero(t, champion)
				for id, m := range byNode {
					assert.True(t, m.Status.Terminal(), "node %d not terminal", id)
					assert.True(t, m.Slot1.Resolved() && m.Slot2.Resolved(), "node %d has an unresolved slot", id)
				}
				// every entrant except the champion lost exactly twice, or once if it lost the final pair
				losses := map[int]int{}
				for _, m := range byNode {
					if m.Completion == models.CompletionBye {
						continue
					}
					if l, ok := m.LoserSlot(); ok && l.IsTeam() {
						losses[l.Team()]++
					}
				}
				assert.LessOrEqual(t, losses[champion], 1)
				for _, id := range b.Seeds {
					if id != champion {
						assert.Equal(t, 2, losses[id], "team %d", id)
					}
				}
			})
		}
	}
}

// simulate plays a bracket to the end and returns the champion.
func simulate(t *testing.T, b *models.Bracket, pick func(*models.Match) int) (int, map[int]*models.Match) {
	t.Helper()
	now := time.Now()
	byNode := materialize(b)
	_, err := ResolveInitialByes(b, byNode, now)
	require.NoError(t, err)

	for steps := 0; steps < 4*len(b.Nodes); steps++ {
		if champion, ok := Champion(b, byNode); ok {
			return champion, byNode
		}
		var next *models.Match
		for i := range b.Nodes {
			m, ok := byNode[i]
			if ok && m.Playable() && !m.Status.Terminal() {
				next = m
				break
			}
		}
		require.NotNil(t, next, "no playable match but no champion")
		complete(next, pick(next))
		res, err := Advance(b, byNode, next.Elimination.NodeID, AdvanceOptions{Now: now})
		require.NoError(t, err)
		if res.ResetNeeded {
			reset, err := ResetMatch(b, next)
			require.NoError(t, err)
			reset.ID = reset.Elimination.NodeID + 1
			byNode[reset.Elimination.NodeID] = reset
		}
	}
	t.Fatal("bracket did not finish")
	return 0, nil
}

func TestAdvance_SlotConflictWithoutOverwrite(t *testing.T) {
	b := generate(t, 4)
	byNode := materialize(b)
	now := time.Now()

	complete(byNode[0], 101)
	_, err := Advance(b, byNode, 0, AdvanceOptions{Now: now})
	require.NoError(t, err)

	// a corrected winner cannot silently replace the routed one
	byNode[0].WinnerID = models.IntPtr(104)
	_, err = Advance(b, byNode, 0, AdvanceOptions{Now: now})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// with overwrite the pending downstream match is rewritten
	_, err = Advance(b, byNode, 0, AdvanceOptions{Now: now, Overwrite: true})
	require.NoError(t, err)
	target := byNode[b.Nodes[0].WinnerTo.NodeID]
	assert.Equal(t, 104, target.Slot1.Team())
}

func TestAdvance_OverwriteReopensByeCompletedDrop(t *testing.T) {
	b := generate(t, 3)
	byNode := materialize(b)
	now := time.Now()
	_, err := ResolveInitialByes(b, byNode, now)
	require.NoError(t, err)

	// 102 beats 103; 103 drops onto the first-round bye and walks on
	complete(byNode[1], 102)
	_, err = Advance(b, byNode, 1, AdvanceOptions{Now: now})
	require.NoError(t, err)
	drop := byNode[b.Nodes[1].LoserTo.NodeID]
	assert.Equal(t, models.CompletionBye, drop.Completion)
	assert.Equal(t, 103, *drop.WinnerID)
	next := byNode[b.Nodes[drop.Elimination.NodeID].WinnerTo.NodeID]
	assert.Equal(t, 103, next.Slot1.Team())

	byNode[1].WinnerID = models.IntPtr(103)
	_, err = Advance(b, byNode, 1, AdvanceOptions{Now: now})
	assert.ErrorIs(t, err, ErrSlotConflict)

	res, err := Advance(b, byNode, 1, AdvanceOptions{Now: now, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, drop.Status)
	assert.Equal(t, models.CompletionBye, drop.Completion)
	assert.Equal(t, 102, *drop.WinnerID)
	assert.Equal(t, 102, next.Slot1.Team())
	assert.Contains(t, res.Changed, drop)
	assert.Contains(t, res.Changed, next)
	assert.Equal(t, 103, byNode[b.Nodes[1].WinnerTo.NodeID].Slot2.Team())
}
