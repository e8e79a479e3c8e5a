package models

import (
	"strconv"
	"time"
)

// ScheduleSlot is a queue entry: a match reference, its priority band and
// the estimated start time computed on the last queue change.
type ScheduleSlot struct {
	MatchID        int         `json:"match_id"`
	TournamentID   int         `json:"tournament_id"`
	ClassID        int         `json:"class_id"`
	Kind           MatchKind   `json:"kind"`
	Band           int         `json:"band"`
	Position       int         `json:"position"`
	TeamIDs        []int       `json:"team_ids"`
	Status         MatchStatus `json:"status"`
	EstimatedStart time.Time   `json:"estimated_start"`
	EstimatedWait  Duration    `json:"estimated_wait"`
	DelayCount     int         `json:"delay_count"`
	LastDelay      string      `json:"last_delay,omitempty"`
}

// Duration marshals as whole seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(time.Duration(d)/time.Second), 10)), nil
}
