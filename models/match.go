package models

import (
	"fmt"
	"time"
)

type MatchKind string

const (
	MatchKindSwiss       MatchKind = "swiss"
	MatchKindElimination MatchKind = "elimination"
)

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusDelayed    MatchStatus = "delayed"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusForfeited  MatchStatus = "forfeited"
)

// Terminal reports whether no further result can be recorded without an override.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusForfeited
}

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusPending, MatchStatusScheduled, MatchStatusInProgress,
		MatchStatusDelayed, MatchStatusCompleted, MatchStatusForfeited:
		return true
	}
	return false
}

// CompletionKind records how a match reached its terminal status.
type CompletionKind string

const (
	CompletionCompleted  CompletionKind = "completed"
	CompletionTimeout    CompletionKind = "timeout"
	CompletionManual     CompletionKind = "manual"
	CompletionForfeit    CompletionKind = "forfeit"
	CompletionBye        CompletionKind = "bye"
	CompletionCorrection CompletionKind = "correction"
	CompletionReset      CompletionKind = "reset"
)

type SlotKind string

const (
	SlotTeam    SlotKind = "team"
	SlotBye     SlotKind = "bye"
	SlotPending SlotKind = "pending"
)

// Outcome selects which side of an upstream match feeds a slot.
type Outcome string

const (
	OutcomeWinner Outcome = "winner"
	OutcomeLoser  Outcome = "loser"
)

// Slot is one participant position of a match: a concrete team, a bye,
// or a placeholder awaiting the result of an upstream bracket node.
type Slot struct {
	Kind          SlotKind `json:"kind"`
	TeamID        *int     `json:"team_id,omitempty"`
	SourceNodeID  *int     `json:"source_node_id,omitempty"`
	SourceOutcome Outcome  `json:"source_outcome,omitempty"`
}

func TeamSlot(teamID int) Slot {
	return Slot{Kind: SlotTeam, TeamID: &teamID}
}

func ByeSlot() Slot {
	return Slot{Kind: SlotBye}
}

func PendingSlot(nodeID int, outcome Outcome) Slot {
	return Slot{Kind: SlotPending, SourceNodeID: &nodeID, SourceOutcome: outcome}
}

func (s Slot) IsTeam() bool   { return s.Kind == SlotTeam && s.TeamID != nil }
func (s Slot) IsBye() bool    { return s.Kind == SlotBye }
func (s Slot) Resolved() bool { return s.IsTeam() || s.IsBye() }

// Team returns the slot's team id or 0.
func (s Slot) Team() int {
	if s.IsTeam() {
		return *s.TeamID
	}
	return 0
}

// Equal compares the resolved content of two slots.
func (s Slot) Equal(o Slot) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case SlotTeam:
		return s.Team() == o.Team()
	case SlotPending:
		return derefInt(s.SourceNodeID) == derefInt(o.SourceNodeID) && s.SourceOutcome == o.SourceOutcome
	}
	return true
}

func (s Slot) clone() Slot {
	c := s
	if s.TeamID != nil {
		v := *s.TeamID
		c.TeamID = &v
	}
	if s.SourceNodeID != nil {
		v := *s.SourceNodeID
		c.SourceNodeID = &v
	}
	return c
}

type Scores struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// SwissDetails are the Swiss-only fields of a match.
type SwissDetails struct {
	Round            int  `json:"round"`
	Bye              bool `json:"bye,omitempty"`
	RelaxedRepeat    bool `json:"relaxed_repeat,omitempty"`
	RelaxedTierGuard bool `json:"relaxed_tier_guard,omitempty"`
}

// EliminationDetails are the bracket-only fields of a match.
type EliminationDetails struct {
	Side     BracketSide `json:"side"`
	Round    int         `json:"round"`
	Position int         `json:"position"`
	NodeID   int         `json:"node_id"`
	Reset    bool        `json:"reset,omitempty"`
}

// Match is either a Swiss match or an elimination match; Kind selects which
// of Swiss / Elimination is set. Status, version and slots are shared.
type Match struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	ClassID      int       `json:"class_id" db:"class_id"`
	Kind         MatchKind `json:"kind" db:"kind"`

	Swiss       *SwissDetails       `json:"swiss,omitempty" db:"swiss"`
	Elimination *EliminationDetails `json:"elimination,omitempty" db:"elimination"`

	Slot1 Slot `json:"slot1" db:"slot1"`
	Slot2 Slot `json:"slot2" db:"slot2"`

	Status          MatchStatus    `json:"status" db:"status"`
	WinnerID        *int           `json:"winner_id,omitempty" db:"winner_id"`
	Scores          *Scores        `json:"scores,omitempty" db:"scores"`
	Completion      CompletionKind `json:"completion,omitempty" db:"completion"`
	NeedsResolution bool           `json:"needs_resolution,omitempty" db:"needs_resolution"`
	DelayReasons    []string       `json:"delay_reasons,omitempty" db:"delay_reasons"`
	// QueueKey overrides Sequence as the run-order key once a delay or
	// reschedule has moved the match inside its band.
	QueueKey *float64 `json:"queue_key,omitempty" db:"queue_key"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Sequence  int       `json:"sequence" db:"sequence"`
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (m *Match) GetID() int         { return m.ID }
func (m *Match) GetVersion() int    { return m.Version }
func (m *Match) SetVersion(v int)   { m.Version = v }
func (m *Match) EntityKind() string { return "match" }

// Round is the Swiss round or the bracket round, depending on the variant.
func (m *Match) Round() int {
	switch m.Kind {
	case MatchKindSwiss:
		if m.Swiss != nil {
			return m.Swiss.Round
		}
	case MatchKindElimination:
		if m.Elimination != nil {
			return m.Elimination.Round
		}
	}
	return 0
}

// PriorityBand orders matches in the schedule queue: Swiss before elimination.
func (m *Match) PriorityBand() int {
	if m.Kind == MatchKindSwiss {
		return 0
	}
	return 1
}

// OrderKey is the match's position key inside its priority band.
func (m *Match) OrderKey() float64 {
	if m.QueueKey != nil {
		return *m.QueueKey
	}
	return float64(m.Sequence)
}

// Playable reports whether both slots hold concrete teams.
func (m *Match) Playable() bool {
	return m.Slot1.IsTeam() && m.Slot2.IsTeam()
}

// TeamIDs returns the concrete teams in the match, slot order preserved.
func (m *Match) TeamIDs() []int {
	ids := make([]int, 0, 2)
	if m.Slot1.IsTeam() {
		ids = append(ids, m.Slot1.Team())
	}
	if m.Slot2.IsTeam() {
		ids = append(ids, m.Slot2.Team())
	}
	return ids
}

func (m *Match) HasTeam(teamID int) bool {
	return m.Slot1.Team() == teamID || m.Slot2.Team() == teamID
}

// Opponent returns the other team of the match, or 0 if there is none.
func (m *Match) Opponent(teamID int) int {
	switch teamID {
	case m.Slot1.Team():
		return m.Slot2.Team()
	case m.Slot2.Team():
		return m.Slot1.Team()
	}
	return 0
}

// WinnerSlot and LoserSlot describe the outcome of a terminal match as slots,
// so byes propagate through a bracket the same way teams do.
func (m *Match) WinnerSlot() (Slot, bool) {
	if !m.Status.Terminal() {
		return Slot{}, false
	}
	if m.WinnerID != nil {
		return TeamSlot(*m.WinnerID), true
	}
	if m.Slot1.IsBye() && m.Slot2.IsBye() {
		return ByeSlot(), true
	}
	return Slot{}, false
}

func (m *Match) LoserSlot() (Slot, bool) {
	if !m.Status.Terminal() {
		return Slot{}, false
	}
	if m.WinnerID == nil {
		if m.Slot1.IsBye() && m.Slot2.IsBye() {
			return ByeSlot(), true
		}
		return Slot{}, false
	}
	var other Slot
	switch *m.WinnerID {
	case m.Slot1.Team():
		other = m.Slot2
	case m.Slot2.Team():
		other = m.Slot1
	default:
		return Slot{}, false
	}
	if other.IsTeam() {
		return TeamSlot(other.Team()), true
	}
	return ByeSlot(), true
}

func (m *Match) Label() string {
	switch m.Kind {
	case MatchKindSwiss:
		return fmt.Sprintf("S%d", m.Round())
	case MatchKindElimination:
		if m.Elimination != nil {
			return fmt.Sprintf("%s%d-%d", m.Elimination.Side.short(), m.Elimination.Round, m.Elimination.Position)
		}
	}
	return "?"
}

func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Slot1 = m.Slot1.clone()
	c.Slot2 = m.Slot2.clone()
	if m.Swiss != nil {
		s := *m.Swiss
		c.Swiss = &s
	}
	if m.Elimination != nil {
		e := *m.Elimination
		c.Elimination = &e
	}
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.Scores != nil {
		s := *m.Scores
		c.Scores = &s
	}
	c.DelayReasons = append([]string(nil), m.DelayReasons...)
	if m.QueueKey != nil {
		k := *m.QueueKey
		c.QueueKey = &k
	}
	c.ScheduledAt = cloneTime(m.ScheduledAt)
	c.StartedAt = cloneTime(m.StartedAt)
	c.CompletedAt = cloneTime(m.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func IntPtr(v int) *int { return &v }
