package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retreat/internal/models"
)

const donationColumns = `id, reference, donor_name, email, amount, currency, fund, recurring, anonymous,
	message, payment_intent_id, status, created_at, updated_at`

func (db *DB) CreateDonation(ctx context.Context, d *models.Donation) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = models.DonationPending
	}

	result, err := db.NamedExecContext(ctx,
		`INSERT INTO donations (reference, donor_name, email, amount, currency, fund, recurring, anonymous,
             message, payment_intent_id, status, created_at, updated_at)
         VALUES (:reference, :donor_name, :email, :amount, :currency, :fund, :recurring, :anonymous,
             :message, :payment_intent_id, :status, :created_at, :updated_at)`, d)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create donation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

func (db *DB) GetDonationByIntent(ctx context.Context, paymentIntentID string) (*models.Donation, error) {
	var d models.Donation
	err := db.GetContext(ctx, &d, `SELECT `+donationColumns+` FROM donations WHERE payment_intent_id = ?`, paymentIntentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return &d, nil
}

func (db *DB) UpdateDonationStatus(ctx context.Context, paymentIntentID, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE donations SET status = ?, updated_at = ? WHERE payment_intent_id = ?`,
		status, time.Now(), paymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to update donation status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
