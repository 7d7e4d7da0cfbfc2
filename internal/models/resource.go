package models

import "time"

// Resource is a bookable entity: a studio room, an instrument or a choir member.
type Resource struct {
	ID          int64     `yaml:"id" json:"id"`
	Kind        string    `yaml:"kind" json:"kind" validate:"required,oneof=room instrument choir_member"`
	Name        string    `yaml:"name" json:"name" validate:"required,max=120"`
	Category    string    `yaml:"category" json:"category" validate:"max=80"`
	Description string    `yaml:"description" json:"description,omitempty" validate:"max=2000"`
	Capacity    int64     `yaml:"capacity" json:"capacity,omitempty" validate:"gte=0"`
	HourlyRate  int64     `yaml:"hourly_rate" json:"hourly_rate,omitempty" validate:"gte=0"` // cents
	Condition   string    `yaml:"condition" json:"condition,omitempty" validate:"max=80"`
	Skills      []string  `yaml:"skills" json:"skills,omitempty" validate:"max=20,dive,max=80"`
	IsAvailable bool      `yaml:"is_available" json:"is_available"`
	SortOrder   int64     `yaml:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// Billable reports whether reservations of the resource carry a cost.
func (r *Resource) Billable() bool {
	return r.Kind == KindRoom && r.HourlyRate > 0
}
