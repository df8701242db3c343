package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"confirmit/internal/anchor/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore appends anchor records. The table rejects UPDATE and DELETE
// with a trigger.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const anchorColumns = `id, entity_id, entity_type, transaction_ref, consensus_timestamp, data_hash, explorer_url, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Record) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO anchors (`+anchorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(r.ID), r.EntityID, r.EntityType, r.TransactionRef,
		r.ConsensusTimestamp, r.DataHash, r.ExplorerURL, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert anchor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByRef(ctx context.Context, ref string) (*models.Record, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+anchorColumns+` FROM anchors WHERE transaction_ref = $1`, ref)
	r, err := scanAnchor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find anchor: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityID string) ([]*models.Record, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+anchorColumns+` FROM anchors
		WHERE entity_id = $1
		ORDER BY created_at DESC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		r, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnchor(row scanner) (*models.Record, error) {
	var (
		r  models.Record
		id uuid.UUID
	)
	if err := row.Scan(&id, &r.EntityID, &r.EntityType, &r.TransactionRef,
		&r.ConsensusTimestamp, &r.DataHash, &r.ExplorerURL, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = domain.AnchorID(id)
	return &r, nil
}

// isUniqueViolation recognizes the SQLSTATE from either driver's error type.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == uniqueViolation
	}
	return false
}
