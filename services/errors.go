package services

import (
	"errors"
	"fmt"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/brackets"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

var (
	// Algorithmic impossibilities: fatal to the requested operation.
	ErrPairingImpossible = errors.New("pairing impossible: class has no teams")
	ErrNoMoreRounds      = errors.New("configured swiss rounds already played")
	ErrInvalidSeeding    = brackets.ErrInvalidSeeding

	// Lookups
	ErrMatchNotFound      = errors.New("match not found")
	ErrClassNotFound      = errors.New("robot class not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")

	// Business rules
	ErrAlreadyComplete    = errors.New("match already complete")
	ErrResultImmutable    = fmt.Errorf("%w: result is immutable without an override", ErrAlreadyComplete)
	ErrCorrectionBlocked  = fmt.Errorf("%w: downstream play already depends on it", ErrResultImmutable)
	ErrPhaseGateViolation = errors.New("phase transition violates the rotation gate")
	ErrRoundInProgress    = errors.New("current round still has unfinished matches")
	ErrMatchNotReady      = errors.New("match participants are not resolved")
	ErrInvalidResult      = errors.New("invalid match result")
	ErrClassClosed        = errors.New("class no longer accepts registrations")
	ErrValidationFailed   = errors.New("validation failed")

	// Concurrency and queue
	ErrVersionConflict = repositories.ErrVersionConflict
	ErrQueueEmpty      = errors.New("no match ready to run")
	ErrNotQueued       = errors.New("match is not in the schedule queue")

	// ErrNoChange is returned by a mutation function to signal an idempotent
	// replay; the arbiter turns it into a successful no-op.
	ErrNoChange = errors.New("mutation leaves entity unchanged")
)

// translateRepoError maps repository sentinels onto the service taxonomy.
func translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMatchNotFound):
		return fmt.Errorf("%w: %v", ErrMatchNotFound, err)
	case errors.Is(err, repositories.ErrClassNotFound):
		return fmt.Errorf("%w: %v", ErrClassNotFound, err)
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return fmt.Errorf("%w: %v", ErrTournamentNotFound, err)
	case errors.Is(err, repositories.ErrTeamNotFound):
		return fmt.Errorf("%w: %v", ErrTeamNotFound, err)
	case errors.Is(err, repositories.ErrTeamNameConflict),
		errors.Is(err, repositories.ErrTeamTournamentInvalid),
		errors.Is(err, repositories.ErrClassTournamentInvalid):
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return err
}
