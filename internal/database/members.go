package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"retreat/internal/models"

	"github.com/mattn/go-sqlite3"
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (db *DB) CreateMember(ctx context.Context, m *models.Member) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.CreatedAt = time.Now()

	result, err := db.NamedExecContext(ctx,
		`INSERT INTO members (email, password_hash, created_at) VALUES (:email, :password_hash, :created_at)`, m)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (db *DB) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	var m models.Member
	err := db.GetContext(ctx, &m,
		`SELECT id, email, password_hash, created_at FROM members WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

type profileRow struct {
	MemberID         int64     `db:"member_id"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Email            string    `db:"email"`
	Phone            string    `db:"phone"`
	Bio              string    `db:"bio"`
	Ministries       string    `db:"ministries"`
	Address          string    `db:"address"`
	EmergencyContact string    `db:"emergency_contact"`
	Notifications    string    `db:"notifications"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *profileRow) toModel() (*models.Profile, error) {
	p := &models.Profile{
		MemberID:  r.MemberID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Bio:       r.Bio,
		UpdatedAt: r.UpdatedAt,
	}
	fields := []struct {
		raw string
		dst interface{}
	}{
		{r.Ministries, &p.Ministries},
		{r.Address, &p.Address},
		{r.EmergencyContact, &p.EmergencyContact},
		{r.Notifications, &p.Notifications},
	}
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode profile %d: %w", r.MemberID, err)
		}
	}
	return p, nil
}

func (db *DB) GetProfile(ctx context.Context, memberID int64) (*models.Profile, error) {
	var row profileRow
	err := db.GetContext(ctx, &row, `SELECT member_id, first_name, last_name, email, phone, bio,
                ministries, address, emergency_contact, notifications, updated_at
            FROM profiles WHERE member_id = ?`, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return row.toModel()
}

// UpsertProfile replaces the stored profile of p.MemberID.
func (db *DB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	encode := func(v interface{}) string {
		data, _ := json.Marshal(v)
		return string(data)
	}
	ministries := p.Ministries
	if ministries == nil {
		ministries = []string{}
	}

	p.UpdatedAt = time.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO profiles (member_id, first_name, last_name, email, phone, bio,
                ministries, address, emergency_contact, notifications, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(member_id) DO UPDATE SET
                first_name = excluded.first_name,
                last_name = excluded.last_name,
                email = excluded.email,
                phone = excluded.phone,
                bio = excluded.bio,
                ministries = excluded.ministries,
                address = excluded.address,
                emergency_contact = excluded.emergency_contact,
                notifications = excluded.notifications,
                updated_at = excluded.updated_at`,
		p.MemberID, p.FirstName, p.LastName, p.Email, p.Phone, p.Bio,
		encode(ministries), encode(p.Address), encode(p.EmergencyContact), encode(p.Notifications), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
