package models

import "time"

type BracketSide string

const (
	BracketWinners    BracketSide = "winners"
	BracketLosers     BracketSide = "losers"
	BracketGrandFinal BracketSide = "grand_final"
)

func (s BracketSide) short() string {
	switch s {
	case BracketWinners:
		return "W"
	case BracketLosers:
		return "L"
	case BracketGrandFinal:
		return "GF"
	}
	return "?"
}

type FeederKind string

const (
	FeederSeed     FeederKind = "seed"
	FeederWinnerOf FeederKind = "winner_of"
	FeederLoserOf  FeederKind = "loser_of"
)

// Feeder describes where a node slot gets its participant from.
type Feeder struct {
	Kind   FeederKind `json:"kind"`
	Seed   int        `json:"seed,omitempty"`
	NodeID int        `json:"node_id,omitempty"`
}

// Link points at the node and slot (1 or 2) an outcome advances into.
type Link struct {
	NodeID int `json:"node_id"`
	Slot   int `json:"slot"`
}

// BracketNode is one position of a double-elimination topology. Edges are fixed
// when the bracket is generated; only match outcomes flow through them.
type BracketNode struct {
	ID       int         `json:"id"`
	Side     BracketSide `json:"side"`
	Round    int         `json:"round"`
	Position int         `json:"position"`
	Feeders  [2]Feeder   `json:"feeders"`
	WinnerTo *Link       `json:"winner_to,omitempty"`
	LoserTo  *Link       `json:"loser_to,omitempty"`
	// Conditional nodes only get a match when their trigger fires (the bracket reset).
	Conditional bool `json:"conditional,omitempty"`
}

// Bracket is the immutable double-elimination topology of one class.
// Seeds[i] is the team id holding seed i+1.
type Bracket struct {
	ID        int           `json:"id" db:"id"`
	ClassID   int           `json:"class_id" db:"class_id"`
	Size      int           `json:"size" db:"size"`
	Seeds     []int         `json:"seeds" db:"seeds"`
	Nodes     []BracketNode `json:"nodes" db:"nodes"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

func (b *Bracket) Node(id int) (*BracketNode, bool) {
	if id < 0 || id >= len(b.Nodes) {
		return nil, false
	}
	return &b.Nodes[id], true
}

// GrandFinal returns the first grand-final node and the conditional reset node.
func (b *Bracket) GrandFinal() (final, reset *BracketNode) {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Side != BracketGrandFinal {
			continue
		}
		if n.Conditional {
			reset = n
		} else {
			final = n
		}
	}
	return final, reset
}

// SeedOf returns the 1-based seed of teamID, or 0.
func (b *Bracket) SeedOf(teamID int) int {
	for i, id := range b.Seeds {
		if id == teamID {
			return i + 1
		}
	}
	return 0
}

func (b *Bracket) Clone() *Bracket {
	if b == nil {
		return nil
	}
	c := *b
	c.Seeds = append([]int(nil), b.Seeds...)
	c.Nodes = make([]BracketNode, len(b.Nodes))
	for i, n := range b.Nodes {
		cn := n
		if n.WinnerTo != nil {
			l := *n.WinnerTo
			cn.WinnerTo = &l
		}
		if n.LoserTo != nil {
			l := *n.LoserTo
			cn.LoserTo = &l
		}
		c.Nodes[i] = cn
	}
	return &c
}
