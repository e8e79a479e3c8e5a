package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchClassInvalid = errors.New("match class conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	Update(ctx context.Context, match *models.Match, expectedVersion int) error
	// ListByClass returns the class's matches in creation order, optionally
	// restricted to the given statuses.
	ListByClass(ctx context.Context, classID int, statuses ...models.MatchStatus) ([]*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, statuses ...models.MatchStatus) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, class_id, kind, swiss, elimination, slot1, slot2, status,
		       winner_id, scores, completion, needs_resolution, delay_reasons, queue_key,
		       scheduled_at, started_at, completed_at, sequence, version, created_at, updated_at`

// matchDocs holds the JSONB-encoded parts of a match.
type matchDocs struct {
	swiss, elimination, slot1, slot2, scores, delays []byte
}

func encodeMatch(m *models.Match) (*matchDocs, error) {
	var d matchDocs
	var err error
	if m.Swiss != nil {
		if d.swiss, err = marshalJSON(m.Swiss); err != nil {
			return nil, err
		}
	}
	if m.Elimination != nil {
		if d.elimination, err = marshalJSON(m.Elimination); err != nil {
			return nil, err
		}
	}
	if d.slot1, err = marshalJSON(m.Slot1); err != nil {
		return nil, err
	}
	if d.slot2, err = marshalJSON(m.Slot2); err != nil {
		return nil, err
	}
	if m.Scores != nil {
		if d.scores, err = marshalJSON(m.Scores); err != nil {
			return nil, err
		}
	}
	if d.delays, err = marshalJSON(m.DelayReasons); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, m *models.Match) error {
	return r.create(ctx, r.db, m)
}

func (r *postgresMatchRepository) create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	d, err := encodeMatch(m)
	if err != nil {
		return fmt.Errorf("failed to encode match: %w", err)
	}
	if m.Status == "" {
		m.Status = models.MatchStatusPending
	}
	query := `
		INSERT INTO matches
			(tournament_id, class_id, kind, swiss, elimination, slot1, slot2, status, winner_id, scores,
			 completion, needs_resolution, delay_reasons, queue_key, scheduled_at, started_at, completed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)
		RETURNING id, sequence, version, created_at, updated_at`

	err = exec.QueryRowContext(ctx, query,
		m.TournamentID, m.ClassID, m.Kind, d.swiss, d.elimination, d.slot1, d.slot2, m.Status,
		m.WinnerID, d.scores, m.Completion, m.NeedsResolution, d.delays, m.QueueKey,
		m.ScheduledAt, m.StartedAt, m.CompletedAt,
	).Scan(&m.ID, &m.Sequence, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrMatchClassInvalid
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) scanMatch(row rowScanner) (*models.Match, error) {
	var m models.Match
	var d matchDocs
	var completion sql.NullString
	var queueKey sql.NullFloat64
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.ClassID, &m.Kind, &d.swiss, &d.elimination, &d.slot1, &d.slot2, &m.Status,
		&m.WinnerID, &d.scores, &completion, &m.NeedsResolution, &d.delays, &queueKey,
		&m.ScheduledAt, &m.StartedAt, &m.CompletedAt, &m.Sequence, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	m.Completion = models.CompletionKind(completion.String)
	if queueKey.Valid {
		m.QueueKey = &queueKey.Float64
	}

	if len(d.swiss) > 0 && string(d.swiss) != "null" {
		m.Swiss = &models.SwissDetails{}
		if err := unmarshalJSON(d.swiss, m.Swiss); err != nil {
			return nil, fmt.Errorf("match %d swiss details: %w", m.ID, err)
		}
	}
	if len(d.elimination) > 0 && string(d.elimination) != "null" {
		m.Elimination = &models.EliminationDetails{}
		if err := unmarshalJSON(d.elimination, m.Elimination); err != nil {
			return nil, fmt.Errorf("match %d elimination details: %w", m.ID, err)
		}
	}
	if len(d.scores) > 0 && string(d.scores) != "null" {
		m.Scores = &models.Scores{}
		if err := unmarshalJSON(d.scores, m.Scores); err != nil {
			return nil, fmt.Errorf("match %d scores: %w", m.ID, err)
		}
	}
	for _, part := range []struct {
		data []byte
		dst  interface{}
	}{{d.slot1, &m.Slot1}, {d.slot2, &m.Slot2}, {d.delays, &m.DelayReasons}} {
		if err := unmarshalJSON(part.data, part.dst); err != nil {
			return nil, fmt.Errorf("match %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := r.scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil && !errors.Is(err, ErrMatchNotFound) {
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, err
}

func (r *postgresMatchRepository) Update(ctx context.Context, m *models.Match, expectedVersion int) error {
	d, err := encodeMatch(m)
	if err != nil {
		return fmt.Errorf("failed to encode match %d: %w", m.ID, err)
	}
	query := `
		UPDATE matches
		SET slot1 = $1, slot2 = $2, status = $3, winner_id = $4, scores = $5, completion = $6,
		    needs_resolution = $7, delay_reasons = $8, queue_key = $9, scheduled_at = $10, started_at = $11,
		    completed_at = $12, version = version + 1, updated_at = $13
		WHERE id = $14 AND version = $15`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		d.slot1, d.slot2, m.Status, m.WinnerID, d.scores, m.Completion,
		m.NeedsResolution, d.delays, m.QueueKey, m.ScheduledAt, m.StartedAt,
		m.CompletedAt, now, m.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %d: %w", m.ID, err)
	}
	if err := versionedUpdateResult(ctx, r.db, result, "matches", m.ID, ErrMatchNotFound); err != nil {
		return err
	}
	m.Version = expectedVersion + 1
	m.UpdatedAt = now
	return nil
}

func (r *postgresMatchRepository) ListByClass(ctx context.Context, classID int, statuses ...models.MatchStatus) ([]*models.Match, error) {
	return r.list(ctx, "class_id", classID, statuses)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, statuses ...models.MatchStatus) ([]*models.Match, error) {
	return r.list(ctx, "tournament_id", tournamentID, statuses)
}

func (r *postgresMatchRepository) list(ctx context.Context, column string, id int, statuses []models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE ` + column + ` = $1`)
	args := []interface{}{id}

	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		queryBuilder.WriteString(" AND status = ANY($")
		queryBuilder.WriteString(strconv.Itoa(len(args) + 1))
		queryBuilder.WriteString(")")
		args = append(args, pq.Array(names))
	}
	queryBuilder.WriteString(" ORDER BY sequence")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches by %s %d: %w", column, id, err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := r.scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}
