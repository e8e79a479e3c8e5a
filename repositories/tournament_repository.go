package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	Update(ctx context.Context, tournament *models.Tournament, expectedVersion int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, swiss_rounds, class_ids, phase, rotation, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING id, version, created_at, updated_at`
	if t.Phase == "" {
		t.Phase = models.TournamentPhaseSetup
	}
	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.SwissRounds, intArray(t.ClassIDs), t.Phase, t.Rotation,
	).Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament %q: %w", t.Name, err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, name, swiss_rounds, class_ids, phase, rotation, version, created_at, updated_at
		FROM tournaments
		WHERE id = $1`

	var t models.Tournament
	var classIDs pq.Int64Array
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.SwissRounds, &classIDs, &t.Phase, &t.Rotation,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	t.ClassIDs = fromInt64Array(classIDs)
	return &t, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament, expectedVersion int) error {
	query := `
		UPDATE tournaments
		SET name = $1, swiss_rounds = $2, class_ids = $3, phase = $4, rotation = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.SwissRounds, intArray(t.ClassIDs), t.Phase, t.Rotation, now,
		t.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d: %w", t.ID, err)
	}
	if err := versionedUpdateResult(ctx, r.db, result, "tournaments", t.ID, ErrTournamentNotFound); err != nil {
		return err
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = now
	return nil
}
