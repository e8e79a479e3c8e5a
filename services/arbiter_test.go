package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

func newTournamentArbiter(t *testing.T) (*ConflictArbiter[*models.Tournament], *repositories.Store, *events.Recorder, *models.Tournament) {
	t.Helper()
	store := repositories.NewMemoryStore()
	recorder := &events.Recorder{}
	tournament := &models.Tournament{Name: "Spring Brawl", SwissRounds: 3, Rotation: models.RotationGated}
	require.NoError(t, store.Tournaments.Create(context.Background(), tournament))
	arbiter := NewConflictArbiter[*models.Tournament](tournamentStore{store.Tournaments}, store.Operations, recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		func(t *models.Tournament) int { return t.ID })
	return arbiter, store, recorder, tournament
}

func rename(name string) Mutation[*models.Tournament] {
	return func(t *models.Tournament) error {
		t.Name = name
		return nil
	}
}

func outcomes(t *testing.T, store *repositories.Store, id int) []models.OperationOutcome {
	t.Helper()
	ops, err := store.Operations.ListByEntity(context.Background(), "tournament", id)
	require.NoError(t, err)
	var out []models.OperationOutcome
	for _, op := range ops {
		out = append(out, op.Outcome)
	}
	return out
}

func TestConflictArbiter_StaleWriteGetsCurrentState(t *testing.T) {
	ctx := context.Background()
	arbiter, store, recorder, tournament := newTournamentArbiter(t)

	// GIVEN alice and bob both loaded version 1
	saved, err := arbiter.ApplyMutation(ctx, tournament.ID, 1, "alice", "rename", rename("Autumn Brawl"))
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	// WHEN bob writes on top of version 1
	_, err = arbiter.ApplyMutation(ctx, tournament.ID, 1, "bob", "rename", rename("Winter Brawl"))

	// THEN he gets a conflict carrying alice's state
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionConflict)
	var conflict *ConflictError[*models.Tournament]
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "Autumn Brawl", conflict.Current.Name)
	assert.Equal(t, 1, conflict.ExpectedVersion)
	assert.Equal(t, 2, conflict.CurrentVersion)

	var state ConflictState
	require.True(t, errors.As(err, &state))
	assert.Equal(t, conflict.Current, state.CurrentState())

	stored, err := store.Tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, "Autumn Brawl", stored.Name)

	detected := recorder.OfType(events.ConflictDetected)
	require.Len(t, detected, 1)
	assert.Equal(t, tournament.ID, detected[0].TournamentID)

	want := []models.OperationOutcome{models.OperationApplied, models.OperationConflict}
	if diff := cmp.Diff(want, outcomes(t, store, tournament.ID)); diff != "" {
		t.Errorf("operation log mismatch (-want +got):\n%s", diff)
	}
}

func TestConflictArbiter_NoChangeAndRejection(t *testing.T) {
	ctx := context.Background()
	arbiter, store, _, tournament := newTournamentArbiter(t)

	same, err := arbiter.ApplyMutation(ctx, tournament.ID, 1, "alice", "noop", func(*models.Tournament) error {
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, 1, same.Version)

	_, err = arbiter.ApplyMutation(ctx, tournament.ID, 1, "alice", "bad", func(*models.Tournament) error {
		return fmt.Errorf("%w: nope", ErrValidationFailed)
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	stored, err := store.Tournaments.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)

	want := []models.OperationOutcome{models.OperationNoop, models.OperationRejected}
	if diff := cmp.Diff(want, outcomes(t, store, tournament.ID)); diff != "" {
		t.Errorf("operation log mismatch (-want +got):\n%s", diff)
	}

	_, err = arbiter.ApplyMutation(ctx, 9999, 1, "alice", "rename", rename("x"))
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestConflictArbiter_ApplyLatest(t *testing.T) {
	ctx := context.Background()
	arbiter, store, _, tournament := newTournamentArbiter(t)
	_, err := arbiter.ApplyMutation(ctx, tournament.ID, 1, "alice", "rename", rename("Autumn Brawl"))
	require.NoError(t, err)

	saved, err := arbiter.ApplyLatest(ctx, tournament.ID, "phase", func(t *models.Tournament) error {
		t.Phase = models.TournamentPhaseSwiss
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Version)
	assert.Equal(t, "Autumn Brawl", saved.Name)

	ops, err := store.Operations.ListByEntity(ctx, "tournament", tournament.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "system", ops[1].Actor)
	assert.Equal(t, 2, ops[1].VersionObserved)
	assert.Equal(t, 3, ops[1].VersionStored)
}
