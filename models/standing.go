package models

// Standing is one team's record inside one class. It is always derived from
// match results and never stored.
type Standing struct {
	TeamID            int            `json:"team_id"`
	ClassID           int            `json:"class_id"`
	Tier              ExperienceTier `json:"tier"`
	RegistrationOrder int            `json:"registration_order"`
	Wins              int            `json:"wins"`
	Losses            int            `json:"losses"`
	Byes              int            `json:"byes"`
	// Opponents in the order they were faced; byes are not opponents.
	Opponents    []int   `json:"opponents"`
	TieBreak     float64 `json:"tie_break"`
	ScoreFor     int     `json:"score_for"`
	ScoreAgainst int     `json:"score_against"`
	Rank         int     `json:"rank"`
}

func (s *Standing) Played() int {
	return s.Wins + s.Losses
}

// WinRate counts a bye as a win.
func (s *Standing) WinRate() float64 {
	if s.Played() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Played())
}

func (s *Standing) HasFaced(teamID int) bool {
	for _, id := range s.Opponents {
		if id == teamID {
			return true
		}
	}
	return false
}
