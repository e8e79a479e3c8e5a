package models

import "time"

// TournamentPhase is the overall phase of a tournament, rolled up from its classes.
type TournamentPhase string

const (
	TournamentPhaseSetup       TournamentPhase = "setup"
	TournamentPhaseSwiss       TournamentPhase = "swiss"
	TournamentPhaseElimination TournamentPhase = "elimination"
	TournamentPhaseComplete    TournamentPhase = "complete"
)

// RotationPolicy controls how the coordinator interleaves classes.
type RotationPolicy string

const (
	// RotationRoundRobin advances each class by one Swiss round in turn.
	RotationRoundRobin RotationPolicy = "round_robin"
	// RotationGated holds every elimination phase until all classes finished Swiss.
	RotationGated RotationPolicy = "gated"
)

func (p RotationPolicy) Valid() bool {
	return p == RotationRoundRobin || p == RotationGated
}

// Tournament owns its classes, teams and matches.
type Tournament struct {
	ID          int             `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	SwissRounds int             `json:"swiss_rounds" db:"swiss_rounds"`
	ClassIDs    []int           `json:"class_ids" db:"class_ids"`
	Phase       TournamentPhase `json:"phase" db:"phase"`
	Rotation    RotationPolicy  `json:"rotation" db:"rotation"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func (t *Tournament) GetID() int         { return t.ID }
func (t *Tournament) GetVersion() int    { return t.Version }
func (t *Tournament) SetVersion(v int)   { t.Version = v }
func (t *Tournament) EntityKind() string { return "tournament" }

func (t *Tournament) Clone() *Tournament {
	if t == nil {
		return nil
	}
	c := *t
	c.ClassIDs = append([]int(nil), t.ClassIDs...)
	return &c
}

// ClassOrder returns the position of classID in the tournament's class list, or -1.
func (t *Tournament) ClassOrder(classID int) int {
	for i, id := range t.ClassIDs {
		if id == classID {
			return i
		}
	}
	return -1
}
