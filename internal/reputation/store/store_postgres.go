package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"confirmit/internal/reputation/models"
	"confirmit/pkg/domain"
	"confirmit/pkg/platform/tx"
)

// PostgresStore persists reputation records in PostgreSQL. Writes join a
// transaction carried on the context when one is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `subject_hash, bank_code, trust_score, risk_level, fraud_total, fraud_recent_30d,
	verified_business_id, verified_business_name, verified_business_ok, verified_business_score,
	flags, last_checked, check_count, created_at, updated_at`

func (s *PostgresStore) Find(ctx context.Context, subject domain.SubjectHash) (*models.Record, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM reputation_records WHERE subject_hash = $1`, subject.String())
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find reputation record: %w", err)
	}
	return rec, nil
}

// SaveRefresh upserts the oracle-derived fields in one statement. Scored
// fields are last-write-wins; fraud counters and last_checked never go back.
func (s *PostgresStore) SaveRefresh(ctx context.Context, r models.Refresh) (*models.Record, error) {
	var (
		vbID, vbName sql.NullString
		vbOK         bool
		vbScore      sql.NullInt64
	)
	if vb := r.VerifiedBusiness; vb != nil {
		vbID = sql.NullString{String: vb.BusinessID.String(), Valid: true}
		vbName = sql.NullString{String: vb.Name, Valid: true}
		vbOK = vb.Verified
		if vb.TrustScore != nil {
			vbScore = sql.NullInt64{Int64: int64(*vb.TrustScore), Valid: true}
		}
	}
	query := `
		INSERT INTO reputation_records (
			subject_hash, bank_code, trust_score, risk_level, fraud_total, fraud_recent_30d,
			verified_business_id, verified_business_name, verified_business_ok, verified_business_score,
			flags, last_checked, check_count, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $12, $12)
		ON CONFLICT (subject_hash) DO UPDATE SET
			bank_code = COALESCE(EXCLUDED.bank_code, reputation_records.bank_code),
			trust_score = EXCLUDED.trust_score,
			risk_level = EXCLUDED.risk_level,
			fraud_total = GREATEST(reputation_records.fraud_total, EXCLUDED.fraud_total),
			fraud_recent_30d = GREATEST(reputation_records.fraud_recent_30d, EXCLUDED.fraud_recent_30d),
			verified_business_id = EXCLUDED.verified_business_id,
			verified_business_name = EXCLUDED.verified_business_name,
			verified_business_ok = EXCLUDED.verified_business_ok,
			verified_business_score = EXCLUDED.verified_business_score,
			flags = CASE
				WHEN $13 = ANY(reputation_records.flags) AND NOT ($13 = ANY(EXCLUDED.flags))
					AND GREATEST(reputation_records.fraud_total, EXCLUDED.fraud_total) > 0
				THEN array_append(EXCLUDED.flags, $13)
				ELSE EXCLUDED.flags
			END,
			last_checked = GREATEST(reputation_records.last_checked, EXCLUDED.last_checked),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, query,
		r.Subject.String(),
		r.BankCode,
		r.Assessment.TrustScore,
		string(r.Assessment.RiskLevel),
		r.Assessment.Fraud.Total,
		r.Assessment.Fraud.Recent30d,
		vbID, vbName, vbOK, vbScore,
		pq.Array(refreshedFlags(nil, r.Assessment.Flags, 0)),
		r.CheckedAt,
		models.ReportedFlag,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("save reputation refresh: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) RecordCheck(ctx context.Context, subject domain.SubjectHash) (int64, error) {
	var count int64
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		UPDATE reputation_records SET check_count = check_count + 1
		WHERE subject_hash = $1
		RETURNING check_count`, subject.String()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record reputation check: %w", err)
	}
	return count, nil
}

// RecordFraudReport increments both fraud counters atomically, inserting the
// reported-subject record when absent.
func (s *PostgresStore) RecordFraudReport(ctx context.Context, subject domain.SubjectHash, now time.Time) (*models.Record, error) {
	row := tx.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO reputation_records (
			subject_hash, trust_score, risk_level, fraud_total, fraud_recent_30d, flags,
			check_count, created_at, updated_at
		) VALUES ($1, $2, $3, 1, 1, $4, 0, $5, $5)
		ON CONFLICT (subject_hash) DO UPDATE SET
			fraud_total = reputation_records.fraud_total + 1,
			fraud_recent_30d = reputation_records.fraud_recent_30d + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING `+recordColumns,
		subject.String(),
		models.ReportedTrustScore,
		string(models.RiskHigh),
		pq.Array([]string{models.ReportedFlag}),
		now,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("record fraud report counters: %w", err)
	}
	return rec, nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		rec          models.Record
		subject      string
		bankCode     sql.NullString
		risk         string
		vbID, vbName sql.NullString
		vbOK         bool
		vbScore      sql.NullInt64
		flags        pq.StringArray
		lastChecked  sql.NullTime
	)
	if err := row.Scan(
		&subject, &bankCode, &rec.TrustScore, &risk, &rec.Fraud.Total, &rec.Fraud.Recent30d,
		&vbID, &vbName, &vbOK, &vbScore,
		&flags, &lastChecked, &rec.CheckCount, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.SubjectHash = domain.SubjectHash(subject)
	rec.BankCode = bankCode.String
	rec.RiskLevel = models.RiskLevel(risk)
	rec.Flags = []string(flags)
	if rec.Flags == nil {
		rec.Flags = []string{}
	}
	if lastChecked.Valid {
		rec.LastChecked = lastChecked.Time
	}
	if vbID.Valid {
		vb := &models.VerifiedBusiness{
			BusinessID: domain.BusinessID(vbID.String),
			Name:       vbName.String,
			Verified:   vbOK,
		}
		if vbScore.Valid {
			score := int(vbScore.Int64)
			vb.TrustScore = &score
		}
		rec.VerifiedBusiness = vb
	}
	return &rec, nil
}
