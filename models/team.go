package models

import "time"

type ExperienceTier string

const (
	TierNovice       ExperienceTier = "novice"
	TierIntermediate ExperienceTier = "intermediate"
	TierAdvanced     ExperienceTier = "advanced"
)

func (t ExperienceTier) Valid() bool {
	switch t {
	case TierNovice, TierIntermediate, TierAdvanced:
		return true
	}
	return false
}

// Team is a registered competitor. RegistrationOrder is the stable secondary ranking key.
type Team struct {
	ID                int            `json:"id" db:"id"`
	TournamentID      int            `json:"tournament_id" db:"tournament_id"`
	Name              string         `json:"name" db:"name"`
	Tier              ExperienceTier `json:"tier" db:"tier"`
	ClassIDs          []int          `json:"class_ids" db:"class_ids"`
	RegistrationOrder int            `json:"registration_order" db:"registration_order"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

func (t *Team) InClass(classID int) bool {
	for _, id := range t.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	c.ClassIDs = append([]int(nil), t.ClassIDs...)
	return &c
}
