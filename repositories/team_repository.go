package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var (
	ErrTeamNotFound          = errors.New("team not found")
	ErrTeamNameConflict      = errors.New("team name already registered in tournament")
	ErrTeamTournamentInvalid = errors.New("team tournament conflict or invalid")
)

type TeamRepository interface {
	// Create assigns the id and the next registration order within the tournament.
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id int) (*models.Team, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error)
	ListByClass(ctx context.Context, classID int) ([]*models.Team, error)
	Update(ctx context.Context, team *models.Team) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

const teamColumns = `id, tournament_id, name, tier, class_ids, registration_order, created_at`

func (r *postgresTeamRepository) Create(ctx context.Context, t *models.Team) error {
	query := `
		INSERT INTO teams (tournament_id, name, tier, class_ids, registration_order)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(registration_order), 0) + 1 FROM teams WHERE tournament_id = $1))
		RETURNING id, registration_order, created_at`
	err := r.db.QueryRowContext(ctx, query,
		t.TournamentID, t.Name, t.Tier, intArray(t.ClassIDs),
	).Scan(&t.ID, &t.RegistrationOrder, &t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrTeamNameConflict
		}
		if isForeignKeyViolation(err) {
			return ErrTeamTournamentInvalid
		}
		return fmt.Errorf("failed to create team %q: %w", t.Name, err)
	}
	return nil
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var t models.Team
	var classIDs pq.Int64Array
	err := row.Scan(&t.ID, &t.TournamentID, &t.Name, &t.Tier, &classIDs, &t.RegistrationOrder, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	t.ClassIDs = fromInt64Array(classIDs)
	return &t, nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	t, err := scanTeam(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, ErrTeamNotFound) {
		return nil, fmt.Errorf("failed to scan team %d: %w", id, err)
	}
	return t, err
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tournament_id = $1 ORDER BY registration_order`
	return r.list(ctx, query, tournamentID)
}

func (r *postgresTeamRepository) ListByClass(ctx context.Context, classID int) ([]*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE $1 = ANY(class_ids) ORDER BY registration_order`
	return r.list(ctx, query, classID)
}

func (r *postgresTeamRepository) list(ctx context.Context, query string, arg int) ([]*models.Team, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team rows: %w", err)
	}
	return teams, nil
}

func (r *postgresTeamRepository) Update(ctx context.Context, t *models.Team) error {
	query := `UPDATE teams SET name = $1, tier = $2, class_ids = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, t.Name, t.Tier, intArray(t.ClassIDs), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update team %d: %w", t.ID, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}
