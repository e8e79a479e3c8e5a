package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var ErrBracketNotFound = errors.New("bracket not found")

// BracketRepository has no Update: a topology never changes once generated.
type BracketRepository interface {
	GetByClass(ctx context.Context, classID int) (*models.Bracket, error)
}

type postgresBracketRepository struct {
	db *sql.DB
}

func NewPostgresBracketRepository(db *sql.DB) BracketRepository {
	return &postgresBracketRepository{db: db}
}

func (r *postgresBracketRepository) create(ctx context.Context, exec SQLExecutor, b *models.Bracket) error {
	nodes, err := marshalJSON(b.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode bracket nodes: %w", err)
	}
	query := `
		INSERT INTO brackets (class_id, size, seeds, nodes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err = exec.QueryRowContext(ctx, query, b.ClassID, b.Size, intArray(b.Seeds), nodes).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bracket for class %d: %w", b.ClassID, err)
	}
	return nil
}

func (r *postgresBracketRepository) GetByClass(ctx context.Context, classID int) (*models.Bracket, error) {
	query := `SELECT id, class_id, size, seeds, nodes, created_at FROM brackets WHERE class_id = $1`

	var b models.Bracket
	var seeds pq.Int64Array
	var nodes []byte
	err := r.db.QueryRowContext(ctx, query, classID).Scan(&b.ID, &b.ClassID, &b.Size, &seeds, &nodes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNotFound
		}
		return nil, fmt.Errorf("failed to scan bracket for class %d: %w", classID, err)
	}
	b.Seeds = fromInt64Array(seeds)
	if err := unmarshalJSON(nodes, &b.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode bracket nodes for class %d: %w", classID, err)
	}
	return &b, nil
}
