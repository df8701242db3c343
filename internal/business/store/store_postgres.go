package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"confirmit/internal/business/models"
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

const businessColumns = `id, name, category, email, phone, address,
	bank_account_sealed, account_masked, bank_code, account_name,
	tier, status, verified_at, rejection_reason, trust_score, anchor_ref,
	profile_views, verifications, created_at, updated_at, documents`

func (s *PostgresStore) Create(ctx context.Context, b *models.Business) error {
	docs, err := json.Marshal(b.Documents)
	if err != nil {
		return fmt.Errorf("encode business documents: %w", err)
	}
	_, err = tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO businesses (`+businessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		b.ID.String(), b.Name, b.Category, b.Contact.Email, b.Contact.Phone, b.Contact.Address,
		b.BankAccount.NumberSealed, b.BankAccount.Masked, b.BankAccount.BankCode, b.BankAccount.AccountName,
		b.Tier, string(b.Status), b.VerifiedAt, nullString(b.RejectionReason), b.TrustScore, nullString(b.AnchorRef),
		b.Stats.ProfileViews, b.Stats.Verifications, b.CreatedAt, b.UpdatedAt, docs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.BusinessID) (*models.Business, error) {
	return s.find(ctx, tx.Executor(ctx, s.db), id, false)
}

// Execute locks the row with FOR UPDATE for the duration of validate and
// mutate. It joins the caller's transaction when ctx carries one.
func (s *PostgresStore) Execute(ctx context.Context, id domain.BusinessID, validate func(*models.Business) error, mutate func(*models.Business)) (*models.Business, error) {
	var out *models.Business
	run := func(ctx context.Context) error {
		exec := tx.Executor(ctx, s.db)
		b, err := s.find(ctx, exec, id, true)
		if err != nil {
			return err
		}
		if err := validate(b); err != nil {
			return err
		}
		mutate(b)
		_, err = exec.ExecContext(ctx, `
			UPDATE businesses
			SET status = $2, verified_at = $3, rejection_reason = $4,
			    trust_score = $5, anchor_ref = $6, updated_at = $7
			WHERE id = $1`,
			id.String(), string(b.Status), b.VerifiedAt, nullString(b.RejectionReason),
			b.TrustScore, nullString(b.AnchorRef), b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update business: %w", err)
		}
		out = b
		return nil
	}

	var err error
	if _, ok := tx.From(ctx); ok {
		err = run(ctx)
	} else {
		err = tx.NewPostgres(s.db).RunInTx(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) UpdateTrustScore(ctx context.Context, id domain.BusinessID, score int, anchorRef string, at time.Time) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE businesses SET trust_score = $2, anchor_ref = $3, updated_at = $4
		WHERE id = $1`, id.String(), score, anchorRef, at)
	if err != nil {
		return fmt.Errorf("update trust score: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddAPIKey(ctx context.Context, id domain.BusinessID, key models.APIKey) error {
	// INSERT … SELECT affects no row when the business does not exist.
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO business_api_keys (key_id, business_id, key_hash, env, created_at)
		SELECT $1, id, $3, $4, $5 FROM businesses WHERE id = $2`,
		key.KeyID, id.String(), key.KeyHash, string(key.Env), key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) RecordProfileView(ctx context.Context, id domain.BusinessID) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE businesses SET profile_views = profile_views + 1 WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("record profile view: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) RecordVerification(ctx context.Context, id domain.BusinessID) error {
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE businesses SET verifications = verifications + 1 WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) find(ctx context.Context, exec tx.DBTX, id domain.BusinessID, forUpdate bool) (*models.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		b         models.Business
		rawID     string
		status    string
		reason    sql.NullString
		anchorRef sql.NullString
		score     sql.NullInt64
		verified  sql.NullTime
		docs      []byte
	)
	err := exec.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID, &b.Name, &b.Category, &b.Contact.Email, &b.Contact.Phone, &b.Contact.Address,
		&b.BankAccount.NumberSealed, &b.BankAccount.Masked, &b.BankAccount.BankCode, &b.BankAccount.AccountName,
		&b.Tier, &status, &verified, &reason, &score, &anchorRef,
		&b.Stats.ProfileViews, &b.Stats.Verifications, &b.CreatedAt, &b.UpdatedAt, &docs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find business: %w", err)
	}
	b.ID = domain.BusinessID(rawID)
	b.Status = models.Status(status)
	b.RejectionReason = reason.String
	b.AnchorRef = anchorRef.String
	if err := json.Unmarshal(docs, &b.Documents); err != nil {
		return nil, fmt.Errorf("decode business documents: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		b.TrustScore = &v
	}
	if verified.Valid {
		t := verified.Time
		b.VerifiedAt = &t
	}

	keys, err := s.listKeys(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	b.APIKeys = keys
	return &b, nil
}

func (s *PostgresStore) listKeys(ctx context.Context, exec tx.DBTX, id domain.BusinessID) ([]models.APIKey, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT key_id, key_hash, env, created_at FROM business_api_keys
		WHERE business_id = $1 ORDER BY created_at`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		var (
			k   models.APIKey
			env string
		)
		if err := rows.Scan(&k.KeyID, &k.KeyHash, &env, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		k.Env = models.Env(env)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
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
