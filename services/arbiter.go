package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

const (
	systemActor        = "system"
	latestRetryAttempt = 5
)

// Versioned is an entity guarded by an optimistic version counter.
type Versioned interface {
	GetID() int
	GetVersion() int
	SetVersion(v int)
	EntityKind() string
}

// EntityStore is the per-entity slice of the persistence contract the arbiter needs.
type EntityStore[T Versioned] interface {
	Load(ctx context.Context, id int) (T, error)
	Save(ctx context.Context, entity T, expectedVersion int) error
}

// ConflictError reports a stale write and carries the authoritative state the
// caller lost against.
type ConflictError[T Versioned] struct {
	EntityKind      string
	EntityID        int
	ExpectedVersion int
	CurrentVersion  int
	Current         T
}

func (e *ConflictError[T]) Error() string {
	return fmt.Sprintf("version conflict on %s %d: expected version %d, stored version %d",
		e.EntityKind, e.EntityID, e.ExpectedVersion, e.CurrentVersion)
}

func (e *ConflictError[T]) Unwrap() error { return ErrVersionConflict }

// CurrentState exposes the winning state without the caller knowing T.
func (e *ConflictError[T]) CurrentState() interface{} { return e.Current }

// ConflictState is implemented by every ConflictError.
type ConflictState interface {
	error
	CurrentState() interface{}
}

// Mutation edits the loaded entity in place. Returning ErrNoChange makes the
// call an idempotent no-op; any other error rejects it without writing.
type Mutation[T Versioned] func(current T) error

// CommitFunc persists a mutated entity together with whatever else the
// mutation produced, all or nothing.
type CommitFunc[T Versioned] func(ctx context.Context, entity T, expectedVersion int) error

// ConflictArbiter linearizes writes to one entity kind through its version
// counter and leaves a ConcurrentOperation record for every attempt.
type ConflictArbiter[T Versioned] struct {
	store      EntityStore[T]
	operations repositories.OperationRepository
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
	// tournamentOf names the tournament of an entity for ConflictDetected events.
	tournamentOf func(T) int
}

func NewConflictArbiter[T Versioned](
	store EntityStore[T],
	operations repositories.OperationRepository,
	publisher events.Publisher,
	logger *slog.Logger,
	tournamentOf func(T) int,
) *ConflictArbiter[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &ConflictArbiter[T]{
		store:        store,
		operations:   operations,
		publisher:    publisher,
		logger:       logger,
		now:          time.Now,
		tournamentOf: tournamentOf,
	}
}

// ApplyMutation loads the entity, checks the caller's expected version, runs fn
// and stores the result guarded by that version.
func (a *ConflictArbiter[T]) ApplyMutation(ctx context.Context, id, expectedVersion int, actor, operation string, fn Mutation[T]) (T, error) {
	return a.apply(ctx, id, expectedVersion, actor, operation, fn, a.store.Save)
}

// ApplyCommit is ApplyMutation with a custom commit, used when the mutation
// creates other entities that must be stored atomically with it.
func (a *ConflictArbiter[T]) ApplyCommit(ctx context.Context, id, expectedVersion int, actor, operation string, fn Mutation[T], commit CommitFunc[T]) (T, error) {
	return a.apply(ctx, id, expectedVersion, actor, operation, fn, commit)
}

// ApplyLatest applies fn on top of whatever version is stored, retrying when a
// concurrent writer wins the race. It is for engine-internal follow-up writes
// whose mutation is safe to recompute against any newer state.
func (a *ConflictArbiter[T]) ApplyLatest(ctx context.Context, id int, operation string, fn Mutation[T]) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < latestRetryAttempt; attempt++ {
		current, err := a.store.Load(ctx, id)
		if err != nil {
			return zero, err
		}
		result, err := a.apply(ctx, id, current.GetVersion(), systemActor, operation, fn, a.store.Save)
		if err == nil || !errors.Is(err, ErrVersionConflict) {
			return result, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%s on %d gave up after %d attempts: %w", operation, id, latestRetryAttempt, lastErr)
}

func (a *ConflictArbiter[T]) apply(ctx context.Context, id, expectedVersion int, actor, operation string, fn Mutation[T], commit CommitFunc[T]) (T, error) {
	var zero T
	current, err := a.store.Load(ctx, id)
	if err != nil {
		return zero, err
	}
	if current.GetVersion() != expectedVersion {
		return zero, a.conflict(ctx, current, expectedVersion, actor, operation)
	}

	if err := fn(current); err != nil {
		if errors.Is(err, ErrNoChange) {
			a.record(ctx, current, expectedVersion, actor, operation, models.OperationNoop, "")
			return current, nil
		}
		a.record(ctx, current, expectedVersion, actor, operation, models.OperationRejected, err.Error())
		return zero, err
	}

	if err := commit(ctx, current, expectedVersion); err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			latest, loadErr := a.store.Load(ctx, id)
			if loadErr != nil {
				return zero, fmt.Errorf("reloading %s %d after conflict: %w", current.EntityKind(), id, loadErr)
			}
			return zero, a.conflict(ctx, latest, expectedVersion, actor, operation)
		}
		return zero, err
	}

	a.record(ctx, current, expectedVersion, actor, operation, models.OperationApplied, "")
	return current, nil
}

func (a *ConflictArbiter[T]) conflict(ctx context.Context, current T, expectedVersion int, actor, operation string) error {
	conflict := &ConflictError[T]{
		EntityKind:      current.EntityKind(),
		EntityID:        current.GetID(),
		ExpectedVersion: expectedVersion,
		CurrentVersion:  current.GetVersion(),
		Current:         current,
	}
	a.logger.Warn("version conflict",
		"entity", conflict.EntityKind, "entity_id", conflict.EntityID, "actor", actor,
		"operation", operation, "expected_version", expectedVersion, "version", conflict.CurrentVersion)
	a.record(ctx, current, expectedVersion, actor, operation, models.OperationConflict, conflict.Error())

	tournamentID := 0
	if a.tournamentOf != nil {
		tournamentID = a.tournamentOf(current)
	}
	e := events.New(events.ConflictDetected, tournamentID, map[string]interface{}{
		"entity_kind":      conflict.EntityKind,
		"entity_id":        conflict.EntityID,
		"expected_version": expectedVersion,
		"current_version":  conflict.CurrentVersion,
		"actor":            actor,
		"operation":        operation,
	})
	if m, ok := any(current).(*models.Match); ok {
		e.ClassID, e.MatchID = m.ClassID, m.ID
	}
	a.publisher.Publish(ctx, e)
	return conflict
}

func (a *ConflictArbiter[T]) record(ctx context.Context, entity T, observed int, actor, operation string, outcome models.OperationOutcome, detail string) {
	if a.operations == nil {
		return
	}
	if actor == "" {
		actor = systemActor
	}
	op := &models.ConcurrentOperation{
		ID:              uuid.NewString(),
		EntityKind:      entity.EntityKind(),
		EntityID:        entity.GetID(),
		VersionObserved: observed,
		VersionStored:   entity.GetVersion(),
		Actor:           actor,
		Operation:       operation,
		Outcome:         outcome,
		Detail:          detail,
		Timestamp:       a.now().UTC(),
	}
	if err := a.operations.Record(ctx, op); err != nil {
		a.logger.Error("failed to record operation", "entity", op.EntityKind, "entity_id", op.EntityID,
			"operation", operation, "error", err)
	}
}

// Entity stores over the repositories.

type matchStore struct{ repo repositories.MatchRepository }

func (s matchStore) Load(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.repo.GetByID(ctx, id)
	return m, translateRepoError(err)
}

func (s matchStore) Save(ctx context.Context, m *models.Match, expectedVersion int) error {
	return translateRepoError(s.repo.Update(ctx, m, expectedVersion))
}

type classStore struct{ repo repositories.ClassRepository }

func (s classStore) Load(ctx context.Context, id int) (*models.RobotClass, error) {
	c, err := s.repo.GetByID(ctx, id)
	return c, translateRepoError(err)
}

func (s classStore) Save(ctx context.Context, c *models.RobotClass, expectedVersion int) error {
	return translateRepoError(s.repo.Update(ctx, c, expectedVersion))
}

type tournamentStore struct{ repo repositories.TournamentRepository }

func (s tournamentStore) Load(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	return t, translateRepoError(err)
}

func (s tournamentStore) Save(ctx context.Context, t *models.Tournament, expectedVersion int) error {
	return translateRepoError(s.repo.Update(ctx, t, expectedVersion))
}
