package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"retreat/internal/models"
)

const resourceColumns = `id, kind, name, category, description, capacity, hourly_rate,
	item_condition, skills, is_available, sort_order, created_at, updated_at`

type resourceRow struct {
	ID          int64     `db:"id"`
	Kind        string    `db:"kind"`
	Name        string    `db:"name"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	Capacity    int64     `db:"capacity"`
	HourlyRate  int64     `db:"hourly_rate"`
	Condition   string    `db:"item_condition"`
	Skills      string    `db:"skills"`
	IsAvailable bool      `db:"is_available"`
	SortOrder   int64     `db:"sort_order"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *resourceRow) toModel() models.Resource {
	res := models.Resource{
		ID:          r.ID,
		Kind:        r.Kind,
		Name:        r.Name,
		Category:    r.Category,
		Description: r.Description,
		Capacity:    r.Capacity,
		HourlyRate:  r.HourlyRate,
		Condition:   r.Condition,
		IsAvailable: r.IsAvailable,
		SortOrder:   r.SortOrder,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(r.Skills), &res.Skills)
	return res
}

func encodeSkills(skills []string) string {
	if len(skills) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(skills)
	return string(data)
}

// SetResources replaces the in-memory resource cache.
func (db *DB) SetResources(resources []models.Resource) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.resourcesCache = make(map[int64]models.Resource, len(resources))
	for i := range resources {
		db.resourcesCache[resources[i].ID] = resources[i]
	}
}

// GetResources returns the cached resources ordered by sort_order, id.
func (db *DB) GetResources() []models.Resource {
	db.mu.RLock()
	out := make([]models.Resource, 0, len(db.resourcesCache))
	for _, r := range db.resourcesCache {
		out = append(out, r)
	}
	db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (db *DB) cacheResource(r models.Resource) {
	db.mu.Lock()
	db.resourcesCache[r.ID] = r
	db.mu.Unlock()
}

// SyncResources upserts the seed list and reloads the cache from the table.
func (db *DB) SyncResources(ctx context.Context, resources []models.Resource) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	query := `INSERT INTO resources (` + resourceColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  kind = excluded.kind,
                  name = excluded.name,
                  category = excluded.category,
                  description = excluded.description,
                  capacity = excluded.capacity,
                  hourly_rate = excluded.hourly_rate,
                  item_condition = excluded.item_condition,
                  skills = excluded.skills,
                  is_available = excluded.is_available,
                  sort_order = excluded.sort_order,
                  updated_at = excluded.updated_at`
	for i := range resources {
		r := &resources[i]
		_, err := tx.ExecContext(ctx, query,
			r.ID, r.Kind, r.Name, r.Category, r.Description, r.Capacity, r.HourlyRate,
			r.Condition, encodeSkills(r.Skills), r.IsAvailable, r.SortOrder, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert resource %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	all, err := db.ListResources(ctx, "", false)
	if err != nil {
		return err
	}
	db.SetResources(all)
	db.logger.Info().Int("count", len(all)).Msg("Resources synchronized")
	return nil
}

func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	query := `INSERT INTO resources (kind, name, category, description, capacity, hourly_rate,
                  item_condition, skills, is_available, sort_order, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		r.Kind, r.Name, r.Category, r.Description, r.Capacity, r.HourlyRate,
		r.Condition, encodeSkills(r.Skills), r.IsAvailable, r.SortOrder, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now

	db.cacheResource(*r)
	return nil
}

// GetResource serves from the cache and falls back to the table.
func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	db.mu.RLock()
	cached, ok := db.resourcesCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	var row resourceRow
	err := db.GetContext(ctx, &row, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	res := row.toModel()
	db.cacheResource(res)
	return &res, nil
}

// ListResources returns resources, optionally filtered by kind and availability.
func (db *DB) ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE 1 = 1`
	var args []interface{}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	if onlyAvailable {
		query += ` AND is_available = 1`
	}
	query += ` ORDER BY sort_order, id`

	var rows []resourceRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	out := make([]models.Resource, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (db *DB) UpdateResource(ctx context.Context, r *models.Resource) error {
	query := `UPDATE resources SET kind = ?, name = ?, category = ?, description = ?, capacity = ?,
                  hourly_rate = ?, item_condition = ?, skills = ?, is_available = ?, sort_order = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		r.Kind, r.Name, r.Category, r.Description, r.Capacity,
		r.HourlyRate, r.Condition, encodeSkills(r.Skills), r.IsAvailable, r.SortOrder, now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.UpdatedAt = now
	db.cacheResource(*r)
	return nil
}

func (db *DB) DeactivateResource(ctx context.Context, id int64) error {
	return db.patchResource(ctx, id, `UPDATE resources SET is_available = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
}

func (db *DB) ReorderResource(ctx context.Context, id, newOrder int64) error {
	return db.patchResource(ctx, id, `UPDATE resources SET sort_order = ?, updated_at = ? WHERE id = ?`, newOrder, time.Now(), id)
}

// patchResource runs a single-row update and refreshes the cached copy.
func (db *DB) patchResource(ctx context.Context, id int64, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update resource %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	var row resourceRow
	if err := db.GetContext(ctx, &row, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to reload resource %d: %w", id, err)
	}
	db.cacheResource(row.toModel())
	return nil
}
