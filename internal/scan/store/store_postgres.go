package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	anchormodels "confirmit/internal/anchor/models"
	"confirmit/internal/scan/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/tx"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, asset_url, asset_id, status, stages, analysis, anchor, failure_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	stages, analysis, anchor, err := encodeSession(session)
	if err != nil {
		return err
	}
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO scan_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		session.ID.String(), nullString(session.UserID), session.Asset.URL, session.Asset.AssetID,
		string(session.Status), stages, analysis, anchor, nullString(session.FailureReason),
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert scan session: %w", err)
	}
	return nil
}

// Update rewrites a session that is still processing. A terminal row is left
// untouched and reported as ErrInvalidState.
func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	stages, analysis, anchor, err := encodeSession(session)
	if err != nil {
		return err
	}
	exec := tx.Executor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE scan_sessions
		SET asset_url = $2, asset_id = $3, status = $4, stages = $5, analysis = $6,
		    anchor = $7, failure_reason = $8, updated_at = $9
		WHERE id = $1 AND status = 'processing'`,
		session.ID.String(), session.Asset.URL, session.Asset.AssetID, string(session.Status),
		stages, analysis, anchor, nullString(session.FailureReason), session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update scan session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scan_sessions WHERE id = $1)`, session.ID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check scan session: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ScanID) (*models.Session, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM scan_sessions WHERE id = $1`, id.String())
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find scan session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM scan_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		session  models.Session
		id       string
		userID   sql.NullString
		status   string
		stages   []byte
		analysis []byte
		anchor   []byte
		reason   sql.NullString
	)
	if err := row.Scan(&id, &userID, &session.Asset.URL, &session.Asset.AssetID, &status,
		&stages, &analysis, &anchor, &reason, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	session.ID = domain.ScanID(id)
	session.UserID = userID.String
	session.Status = models.Status(status)
	session.FailureReason = reason.String

	session.Stages = []models.StageEvent{}
	if err := json.Unmarshal(stages, &session.Stages); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	if len(analysis) > 0 {
		session.Analysis = &models.Analysis{}
		if err := json.Unmarshal(analysis, session.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(anchor) > 0 {
		session.Anchor = &anchormodels.Record{}
		if err := json.Unmarshal(anchor, session.Anchor); err != nil {
			return nil, fmt.Errorf("decode anchor: %w", err)
		}
	}
	return &session, nil
}

// encodeSession renders the JSONB columns. Absent optional values become NULL.
func encodeSession(session *models.Session) (stages []byte, analysis, anchor any, err error) {
	list := session.Stages
	if list == nil {
		list = []models.StageEvent{}
	}
	if stages, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("encode stages: %w", err)
	}
	if session.Analysis != nil {
		b, err := json.Marshal(session.Analysis)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode analysis: %w", err)
		}
		analysis = b
	}
	if session.Anchor != nil {
		b, err := json.Marshal(session.Anchor)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encode anchor: %w", err)
		}
		anchor = b
	}
	return stages, analysis, anchor, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

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
