package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// OperationRepository is the append-only log of guarded mutations.
type OperationRepository interface {
	Record(ctx context.Context, op *models.ConcurrentOperation) error
	ListByEntity(ctx context.Context, entityKind string, entityID int) ([]*models.ConcurrentOperation, error)
}

type postgresOperationRepository struct {
	db *sql.DB
}

func NewPostgresOperationRepository(db *sql.DB) OperationRepository {
	return &postgresOperationRepository{db: db}
}

func (r *postgresOperationRepository) Record(ctx context.Context, op *models.ConcurrentOperation) error {
	query := `
		INSERT INTO concurrent_operations
			(id, entity_kind, entity_id, version_observed, version_stored, actor, operation, outcome, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.EntityKind, op.EntityID, op.VersionObserved, op.VersionStored,
		op.Actor, op.Operation, op.Outcome, op.Detail, op.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record operation %s on %s %d: %w", op.Operation, op.EntityKind, op.EntityID, err)
	}
	return nil
}

func (r *postgresOperationRepository) ListByEntity(ctx context.Context, entityKind string, entityID int) ([]*models.ConcurrentOperation, error) {
	query := `
		SELECT id, entity_kind, entity_id, version_observed, version_stored, actor, operation, outcome, detail, timestamp
		FROM concurrent_operations
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY timestamp, id`
	rows, err := r.db.QueryContext(ctx, query, entityKind, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations for %s %d: %w", entityKind, entityID, err)
	}
	defer rows.Close()

	var ops []*models.ConcurrentOperation
	for rows.Next() {
		var op models.ConcurrentOperation
		if err := rows.Scan(
			&op.ID, &op.EntityKind, &op.EntityID, &op.VersionObserved, &op.VersionStored,
			&op.Actor, &op.Operation, &op.Outcome, &op.Detail, &op.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}
