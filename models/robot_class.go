package models

import "time"

type ClassPhase string

const (
	ClassPhaseSwiss       ClassPhase = "swiss"
	ClassPhaseElimination ClassPhase = "elimination"
	ClassPhaseComplete    ClassPhase = "complete"
)

// HazardConfig holds the arena hazard-activation offsets for a class, in seconds from match start.
type HazardConfig struct {
	PitActivationSeconds  int  `json:"pit_activation_seconds"`
	ButtonDelaySeconds    *int `json:"button_delay_seconds,omitempty"`
	ButtonDurationSeconds *int `json:"button_duration_seconds,omitempty"`
}

// RobotClass is a weight class competing independently inside a tournament.
type RobotClass struct {
	ID                   int          `json:"id" db:"id"`
	TournamentID         int          `json:"tournament_id" db:"tournament_id"`
	Name                 string       `json:"name" db:"name"`
	MatchDurationSeconds int          `json:"match_duration_seconds" db:"match_duration_seconds"`
	Hazards              HazardConfig `json:"hazards" db:"hazards"`
	SwissRounds          int          `json:"swiss_rounds" db:"swiss_rounds"`
	Phase                ClassPhase   `json:"phase" db:"phase"`
	CurrentRound         int          `json:"current_round" db:"current_round"`
	ChampionID           *int         `json:"champion_id,omitempty" db:"champion_id"`
	Version              int          `json:"version" db:"version"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
}

func (c *RobotClass) GetID() int         { return c.ID }
func (c *RobotClass) GetVersion() int    { return c.Version }
func (c *RobotClass) SetVersion(v int)   { c.Version = v }
func (c *RobotClass) EntityKind() string { return "robot_class" }

func (c *RobotClass) MatchDuration() time.Duration {
	return time.Duration(c.MatchDurationSeconds) * time.Second
}

// SwissFinished reports whether the class has played all of its configured Swiss rounds.
// Terminality of the last round is checked separately against its matches.
func (c *RobotClass) SwissFinished() bool {
	return c.Phase != ClassPhaseSwiss || c.CurrentRound >= c.SwissRounds
}

func (c *RobotClass) Clone() *RobotClass {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Hazards = c.Hazards.clone()
	if c.ChampionID != nil {
		id := *c.ChampionID
		cp.ChampionID = &id
	}
	return &cp
}

func (h HazardConfig) clone() HazardConfig {
	out := HazardConfig{PitActivationSeconds: h.PitActivationSeconds}
	if h.ButtonDelaySeconds != nil {
		v := *h.ButtonDelaySeconds
		out.ButtonDelaySeconds = &v
	}
	if h.ButtonDurationSeconds != nil {
		v := *h.ButtonDurationSeconds
		out.ButtonDurationSeconds = &v
	}
	return out
}
