package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"confirmit/internal/fraud/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const reportColumns = `id, subject_hash, category, description, status, reported_at, reviewed_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.Report) error {
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO fraud_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(r.ID), r.Subject.String(), r.Category, r.Description, string(r.Status), r.ReportedAt, r.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fraud report: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ReportID) (*models.Report, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM fraud_reports WHERE id = $1`, uuid.UUID(id))
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find fraud report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject domain.SubjectHash, limit int) ([]*models.Report, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+reportColumns+` FROM fraud_reports
		WHERE subject_hash = $1
		ORDER BY reported_at DESC
		LIMIT $2`, subject.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list fraud reports: %w", err)
	}
	defer rows.Close()

	var out []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fraud report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateStatus is a conditional update; the WHERE clause makes the pending
// check and the write one atomic step.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id domain.ReportID, status models.Status, at time.Time) (*models.Report, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		UPDATE fraud_reports SET status = $2, reviewed_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+reportColumns, uuid.UUID(id), string(status), at)
	r, err := scanReport(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update fraud report status: %w", err)
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, ErrInvalidState
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*models.Report, error) {
	var (
		r          models.Report
		id         uuid.UUID
		subject    string
		status     string
		reviewedAt sql.NullTime
	)
	if err := row.Scan(&id, &subject, &r.Category, &r.Description, &status, &r.ReportedAt, &reviewedAt); err != nil {
		return nil, err
	}
	r.ID = domain.ReportID(id)
	r.Subject = domain.SubjectHash(subject)
	r.Status = models.Status(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	return &r, nil
}
