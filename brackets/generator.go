package brackets

import (
	"context"
	"errors"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var (
	ErrInvalidSeeding  = errors.New("invalid bracket seeding")
	ErrNoTeams         = errors.New("no teams to pair")
	ErrRoundsExhausted = errors.New("configured swiss rounds already played")
	ErrSlotConflict    = errors.New("bracket slot already holds a different participant")
	ErrUnknownNode     = errors.New("bracket node not found")
)

type GenerateBracketParams struct {
	ClassID int
	// Seeds holds team ids in seed order: Seeds[0] is seed 1.
	Seeds []int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error)

	GetName() string
}
