package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var (
	ErrClassNotFound          = errors.New("robot class not found")
	ErrClassTournamentInvalid = errors.New("robot class tournament conflict or invalid")
)

type ClassRepository interface {
	Create(ctx context.Context, class *models.RobotClass) error
	GetByID(ctx context.Context, id int) (*models.RobotClass, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.RobotClass, error)
	Update(ctx context.Context, class *models.RobotClass, expectedVersion int) error
	// CommitWithMatches stores the class state, an optional bracket and new
	// matches in one unit, guarded by the class version. On success the matches
	// carry their ids, sequences and version 1.
	CommitWithMatches(ctx context.Context, class *models.RobotClass, expectedVersion int, bracket *models.Bracket, matches []*models.Match) error
}

type postgresClassRepository struct {
	db      *sql.DB
	matches *postgresMatchRepository
	bracket *postgresBracketRepository
}

func NewPostgresClassRepository(db *sql.DB) ClassRepository {
	return &postgresClassRepository{
		db:      db,
		matches: &postgresMatchRepository{db: db},
		bracket: &postgresBracketRepository{db: db},
	}
}

const classColumns = `id, tournament_id, name, match_duration_seconds, hazards, swiss_rounds,
		       phase, current_round, champion_id, version, updated_at`

func (r *postgresClassRepository) Create(ctx context.Context, c *models.RobotClass) error {
	hazards, err := marshalJSON(c.Hazards)
	if err != nil {
		return fmt.Errorf("failed to encode hazards for class %q: %w", c.Name, err)
	}
	if c.Phase == "" {
		c.Phase = models.ClassPhaseSwiss
	}
	query := `
		INSERT INTO robot_classes
			(tournament_id, name, match_duration_seconds, hazards, swiss_rounds, phase, current_round, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING id, version, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		c.TournamentID, c.Name, c.MatchDurationSeconds, hazards, c.SwissRounds, c.Phase, c.CurrentRound,
	).Scan(&c.ID, &c.Version, &c.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrClassTournamentInvalid
		}
		return fmt.Errorf("failed to create class %q: %w", c.Name, err)
	}
	return nil
}

func (r *postgresClassRepository) scanClass(row rowScanner) (*models.RobotClass, error) {
	var c models.RobotClass
	var hazards []byte
	err := row.Scan(
		&c.ID, &c.TournamentID, &c.Name, &c.MatchDurationSeconds, &hazards, &c.SwissRounds,
		&c.Phase, &c.CurrentRound, &c.ChampionID, &c.Version, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(hazards, &c.Hazards); err != nil {
		return nil, fmt.Errorf("failed to decode hazards for class %d: %w", c.ID, err)
	}
	return &c, nil
}

func (r *postgresClassRepository) GetByID(ctx context.Context, id int) (*models.RobotClass, error) {
	query := `SELECT ` + classColumns + ` FROM robot_classes WHERE id = $1`
	c, err := r.scanClass(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, ErrClassNotFound) {
		return nil, fmt.Errorf("failed to scan class %d: %w", id, err)
	}
	return c, err
}

func (r *postgresClassRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.RobotClass, error) {
	query := `SELECT ` + classColumns + ` FROM robot_classes WHERE tournament_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	var classes []*models.RobotClass
	for rows.Next() {
		c, err := r.scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (r *postgresClassRepository) Update(ctx context.Context, c *models.RobotClass, expectedVersion int) error {
	return r.update(ctx, r.db, c, expectedVersion)
}

func (r *postgresClassRepository) update(ctx context.Context, exec SQLExecutor, c *models.RobotClass, expectedVersion int) error {
	hazards, err := marshalJSON(c.Hazards)
	if err != nil {
		return fmt.Errorf("failed to encode hazards for class %d: %w", c.ID, err)
	}
	query := `
		UPDATE robot_classes
		SET name = $1, match_duration_seconds = $2, hazards = $3, swiss_rounds = $4, phase = $5,
		    current_round = $6, champion_id = $7, version = version + 1, updated_at = $8
		WHERE id = $9 AND version = $10`
	now := time.Now()
	result, err := exec.ExecContext(ctx, query,
		c.Name, c.MatchDurationSeconds, hazards, c.SwissRounds, c.Phase,
		c.CurrentRound, c.ChampionID, now, c.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update class %d: %w", c.ID, err)
	}
	if err := versionedUpdateResult(ctx, exec, result, "robot_classes", c.ID, ErrClassNotFound); err != nil {
		return err
	}
	c.Version = expectedVersion + 1
	c.UpdatedAt = now
	return nil
}

func (r *postgresClassRepository) CommitWithMatches(ctx context.Context, c *models.RobotClass, expectedVersion int, bracket *models.Bracket, matches []*models.Match) error {
	version := c.Version
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.update(ctx, tx, c, expectedVersion); err != nil {
			return err
		}
		if bracket != nil {
			if err := r.bracket.create(ctx, tx, bracket); err != nil {
				return err
			}
		}
		for _, m := range matches {
			if err := r.matches.create(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.Version = version
		return err
	}
	return nil
}
