package brackets

import (
	"context"
	"fmt"
	"log"
	"math/bits"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

type DoubleEliminationGenerator struct {
}

func NewDoubleEliminationGenerator() BracketGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

// GenerateBracket lays out a full double-elimination topology for the given seeds.
// Node ids are indexes into Bracket.Nodes: winners rounds first, then losers
// rounds, then the grand final and its conditional reset.
//
// Losers of winners round 1 meet across halves (match j against match j+size/4),
// and each later drop round takes the winners-round losers in reverse order so a
// dropped team does not immediately meet the side of the bracket it came from.
func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error) {
	n := len(params.Seeds)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 seeds, got %d", ErrInvalidSeeding, n)
	}
	seen := make(map[int]bool, n)
	for i, id := range params.Seeds {
		if id <= 0 {
			return nil, fmt.Errorf("%w: seed %d has no team", ErrInvalidSeeding, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: team %d seeded twice", ErrInvalidSeeding, id)
		}
		seen[id] = true
	}

	numRounds := bits.Len(uint(n - 1))
	size := 1 << numRounds

	log.Printf("Generating double elimination bracket: class=%d teams=%d size=%d byes=%d",
		params.ClassID, n, size, size-n)

	b := &topologyBuilder{}

	placement := SeedPlacement(size)
	winners := make([][]int, numRounds+1)
	for p := 0; p < size/2; p++ {
		winners[1] = append(winners[1], b.add(models.BracketWinners, 1, p+1, [2]models.Feeder{
			{Kind: models.FeederSeed, Seed: placement[2*p]},
			{Kind: models.FeederSeed, Seed: placement[2*p+1]},
		}))
	}
	for r := 2; r <= numRounds; r++ {
		prev := winners[r-1]
		for p := 0; p < len(prev)/2; p++ {
			winners[r] = append(winners[r], b.add(models.BracketWinners, r, p+1, [2]models.Feeder{
				winnerOf(prev[2*p]), winnerOf(prev[2*p+1]),
			}))
		}
	}

	// losersChampion feeds the grand final's second slot.
	losersChampion := loserOf(winners[1][0])
	if numRounds >= 2 {
		round := 0
		var entry []int
		for m := 1; m < numRounds; m++ {
			round++
			var current []int
			if m == 1 {
				quarter := size / 4
				for j := 0; j < quarter; j++ {
					current = append(current, b.add(models.BracketLosers, round, j+1, [2]models.Feeder{
						loserOf(winners[1][j]), loserOf(winners[1][j+quarter]),
					}))
				}
			} else {
				for j := 0; j < len(entry)/2; j++ {
					current = append(current, b.add(models.BracketLosers, round, j+1, [2]models.Feeder{
						winnerOf(entry[2*j]), winnerOf(entry[2*j+1]),
					}))
				}
			}

			round++
			drops := winners[m+1]
			var dropRound []int
			for j := range current {
				dropRound = append(dropRound, b.add(models.BracketLosers, round, j+1, [2]models.Feeder{
					winnerOf(current[j]), loserOf(drops[len(drops)-1-j]),
				}))
			}
			entry = dropRound
		}
		losersChampion = winnerOf(entry[0])
	}

	final := b.add(models.BracketGrandFinal, 1, 1, [2]models.Feeder{
		winnerOf(winners[numRounds][0]), losersChampion,
	})
	reset := b.add(models.BracketGrandFinal, 2, 1, [2]models.Feeder{
		loserOf(final), winnerOf(final),
	})
	b.nodes[reset].Conditional = true

	if err := b.link(); err != nil {
		return nil, err
	}

	return &models.Bracket{
		ClassID: params.ClassID,
		Size:    size,
		Seeds:   append([]int(nil), params.Seeds...),
		Nodes:   b.nodes,
	}, nil
}

// SeedPlacement returns seeds in bracket-slot order for a power-of-two size, so
// that slot pairs (0,1), (2,3), ... are the first-round matches and the top
// seeds can only meet late: 8 -> [1 8 4 5 2 7 3 6].
func SeedPlacement(size int) []int {
	order := []int{1}
	for len(order) < size {
		total := 2*len(order) + 1
		next := make([]int, 0, 2*len(order))
		for _, s := range order {
			next = append(next, s, total-s)
		}
		order = next
	}
	return order
}

type topologyBuilder struct {
	nodes []models.BracketNode
}

func (b *topologyBuilder) add(side models.BracketSide, round, position int, feeders [2]models.Feeder) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, models.BracketNode{
		ID:       id,
		Side:     side,
		Round:    round,
		Position: position,
		Feeders:  feeders,
	})
	return id
}

// link derives the forward edges from the feeders.
func (b *topologyBuilder) link() error {
	for i := range b.nodes {
		for s, f := range b.nodes[i].Feeders {
			target := &models.Link{NodeID: i, Slot: s + 1}
			switch f.Kind {
			case models.FeederWinnerOf:
				if b.nodes[f.NodeID].WinnerTo != nil {
					return fmt.Errorf("internal error: node %d winner routed twice", f.NodeID)
				}
				b.nodes[f.NodeID].WinnerTo = target
			case models.FeederLoserOf:
				if b.nodes[f.NodeID].LoserTo != nil {
					return fmt.Errorf("internal error: node %d loser routed twice", f.NodeID)
				}
				b.nodes[f.NodeID].LoserTo = target
			}
		}
	}
	return nil
}

func winnerOf(id int) models.Feeder {
	return models.Feeder{Kind: models.FeederWinnerOf, NodeID: id}
}

func loserOf(id int) models.Feeder {
	return models.Feeder{Kind: models.FeederLoserOf, NodeID: id}
}
