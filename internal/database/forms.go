package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retreat/internal/models"
)

const formColumns = `id, kind, reference, email, payload, idempotency_key, created_at`

// CreateFormSubmission stores an accepted form. When the idempotency key was
// already used, the stored submission is loaded into f and
// ErrDuplicateSubmission is returned.
func (db *DB) CreateFormSubmission(ctx context.Context, f *models.FormSubmission) error {
	hasKey := f.IdempotencyKey != nil && *f.IdempotencyKey != ""
	if hasKey {
		if err := db.loadSubmissionByKey(ctx, f); !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	f.CreatedAt = time.Now()
	result, err := db.NamedExecContext(ctx,
		`INSERT INTO form_submissions (kind, reference, email, payload, idempotency_key, created_at)
         VALUES (:kind, :reference, :email, :payload, :idempotency_key, :created_at)`, f)
	if err != nil {
		// параллельный повтор с тем же ключом успел вставить строку первым
		if hasKey && isUniqueViolation(err) {
			if lerr := db.loadSubmissionByKey(ctx, f); !errors.Is(lerr, sql.ErrNoRows) {
				return lerr
			}
		}
		return fmt.Errorf("failed to create form submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	f.ID = id
	return nil
}

// loadSubmissionByKey fills f with the submission stored under its
// idempotency key and returns ErrDuplicateSubmission, or sql.ErrNoRows when
// the key is unused.
func (db *DB) loadSubmissionByKey(ctx context.Context, f *models.FormSubmission) error {
	var existing models.FormSubmission
	err := db.GetContext(ctx, &existing, `SELECT `+formColumns+` FROM form_submissions WHERE idempotency_key = ?`, *f.IdempotencyKey)
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	*f = existing
	return ErrDuplicateSubmission
}

func (db *DB) GetFormSubmission(ctx context.Context, reference string) (*models.FormSubmission, error) {
	var f models.FormSubmission
	err := db.GetContext(ctx, &f, `SELECT `+formColumns+` FROM form_submissions WHERE reference = ?`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form submission: %w", err)
	}
	return &f, nil
}

func (db *DB) ListFormSubmissions(ctx context.Context, kind string, limit int) ([]models.FormSubmission, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.FormSubmission
	err := db.SelectContext(ctx, &out,
		`SELECT `+formColumns+` FROM form_submissions WHERE (? = '' OR kind = ?) ORDER BY created_at DESC, id DESC LIMIT ?`,
		kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list form submissions: %w", err)
	}
	return out, nil
}
