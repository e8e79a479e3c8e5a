package brackets

import (
	"sort"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// ComputeStandings derives the Swiss standings of one class from its teams and
// matches. Only terminal Swiss matches count. A bye is a win with no opponent;
// a forfeit without a winner is a loss for both teams. The result is ranked.
func ComputeStandings(classID int, teams []*models.Team, matches []*models.Match) []*models.Standing {
	byTeam := make(map[int]*models.Standing, len(teams))
	standings := make([]*models.Standing, 0, len(teams))
	for _, t := range teams {
		if !t.InClass(classID) {
			continue
		}
		s := &models.Standing{
			TeamID:            t.ID,
			ClassID:           classID,
			Tier:              t.Tier,
			RegistrationOrder: t.RegistrationOrder,
			Opponents:         []int{},
		}
		byTeam[t.ID] = s
		standings = append(standings, s)
	}

	ordered := make([]*models.Match, 0, len(matches))
	for _, m := range matches {
		if m.ClassID == classID && m.Kind == models.MatchKindSwiss && m.Status.Terminal() {
			ordered = append(ordered, m)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Round() != ordered[j].Round() {
			return ordered[i].Round() < ordered[j].Round()
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})

	for _, m := range ordered {
		applyMatch(byTeam, m)
	}

	for _, s := range standings {
		s.TieBreak = 0
		for _, opp := range s.Opponents {
			if o, ok := byTeam[opp]; ok {
				s.TieBreak += o.WinRate()
			}
		}
	}

	RankStandings(standings)
	return standings
}

func applyMatch(byTeam map[int]*models.Standing, m *models.Match) {
	if m.Swiss != nil && m.Swiss.Bye {
		if s, ok := byTeam[m.Slot1.Team()]; ok {
			s.Wins++
			s.Byes++
		}
		return
	}

	s1, ok1 := byTeam[m.Slot1.Team()]
	s2, ok2 := byTeam[m.Slot2.Team()]
	if ok1 && ok2 {
		s1.Opponents = append(s1.Opponents, s2.TeamID)
		s2.Opponents = append(s2.Opponents, s1.TeamID)
	}
	if m.Scores != nil {
		if ok1 {
			s1.ScoreFor += m.Scores.Team1
			s1.ScoreAgainst += m.Scores.Team2
		}
		if ok2 {
			s2.ScoreFor += m.Scores.Team2
			s2.ScoreAgainst += m.Scores.Team1
		}
	}

	if m.WinnerID == nil {
		if ok1 {
			s1.Losses++
		}
		if ok2 {
			s2.Losses++
		}
		return
	}
	for _, s := range []*models.Standing{s1, s2} {
		if s == nil {
			continue
		}
		if s.TeamID == *m.WinnerID {
			s.Wins++
		} else {
			s.Losses++
		}
	}
}

// RankStandings orders by wins, then tie-break, then registration order, then
// team id, and assigns 1-based ranks.
func RankStandings(standings []*models.Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.TieBreak != b.TieBreak {
			return a.TieBreak > b.TieBreak
		}
		if a.RegistrationOrder != b.RegistrationOrder {
			return a.RegistrationOrder < b.RegistrationOrder
		}
		return a.TeamID < b.TeamID
	})
	for i, s := range standings {
		s.Rank = i + 1
	}
}

// SeedsFromStandings returns team ids in seed order.
func SeedsFromStandings(standings []*models.Standing) []int {
	seeds := make([]int, len(standings))
	for i, s := range standings {
		seeds[i] = s.TeamID
	}
	return seeds
}
