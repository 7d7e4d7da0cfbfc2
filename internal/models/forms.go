package models

import "time"

// DamageReport is the "damages to camp assets" form.
type DamageReport struct {
	ReporterName  string   `json:"reporter_name" validate:"required,max=120"`
	Email         string   `json:"email" validate:"required,email"`
	Phone         string   `json:"phone" validate:"omitempty,max=32"`
	AssetName     string   `json:"asset_name" validate:"required,max=200"`
	Location      string   `json:"location" validate:"required,max=200"`
	DamageDate    string   `json:"damage_date" validate:"required,datetime=2006-01-02"`
	Description   string   `json:"description" validate:"required,max=4000"`
	Severity      string   `json:"severity" validate:"required,oneof=low medium high"`
	EstimatedCost int64    `json:"estimated_cost" validate:"gte=0"`
	PhotoURLs     []string `json:"photo_urls" validate:"max=10,dive,url"`
}

// LandAllocation is the application for a plot of camp land.
type LandAllocation struct {
	ApplicantName     string  `json:"applicant_name" validate:"required,max=120"`
	Email             string  `json:"email" validate:"required,email"`
	Phone             string  `json:"phone" validate:"required,max=32"`
	Organization      string  `json:"organization" validate:"omitempty,max=200"`
	Purpose           string  `json:"purpose" validate:"required,max=2000"`
	PlotSize          float64 `json:"plot_size" validate:"required,gt=0"`
	PreferredLocation string  `json:"preferred_location" validate:"omitempty,max=200"`
	StartDate         string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate           string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Attendees         int     `json:"attendees" validate:"gte=0"`
	Notes             string  `json:"notes" validate:"omitempty,max=4000"`
}

// DonationRequest is what the giving page posts to start a payment.
type DonationRequest struct {
	DonorName string `json:"donor_name" validate:"required_unless=Anonymous true,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Amount    int64  `json:"amount" validate:"required,gte=100"` // cents
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	Fund      string `json:"fund" validate:"omitempty,max=80"`
	Recurring bool   `json:"recurring"`
	Anonymous bool   `json:"anonymous"`
	Message   string `json:"message" validate:"omitempty,max=1000"`
}

// DonationConfirm is posted after the payment SDK finishes on the client.
type DonationConfirm struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}

type Donation struct {
	ID              int64     `db:"id" json:"id"`
	Reference       string    `db:"reference" json:"reference"`
	DonorName       string    `db:"donor_name" json:"donor_name"`
	Email           string    `db:"email" json:"email"`
	Amount          int64     `db:"amount" json:"amount"`
	Currency        string    `db:"currency" json:"currency"`
	Fund            string    `db:"fund" json:"fund"`
	Recurring       bool      `db:"recurring" json:"recurring"`
	Anonymous       bool      `db:"anonymous" json:"anonymous"`
	Message         string    `db:"message" json:"message"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type Address struct {
	Line1      string `json:"line1" validate:"omitempty,max=200"`
	Line2      string `json:"line2" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"omitempty,max=100"`
	Region     string `json:"region" validate:"omitempty,max=100"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=20"`
	Country    string `json:"country" validate:"omitempty,max=100"`
}

type EmergencyContact struct {
	Name         string `json:"name" validate:"omitempty,max=120"`
	Relationship string `json:"relationship" validate:"omitempty,max=60"`
	Phone        string `json:"phone" validate:"required_with=Name,max=32"`
}

type NotificationPrefs struct {
	Email      bool `json:"email"`
	SMS        bool `json:"sms"`
	Newsletter bool `json:"newsletter"`
}

// Profile is the member profile edited on the account page.
type Profile struct {
	MemberID         int64             `json:"member_id"`
	FirstName        string            `json:"first_name" validate:"required,max=80"`
	LastName         string            `json:"last_name" validate:"required,max=80"`
	Email            string            `json:"email" validate:"required,email"`
	Phone            string            `json:"phone" validate:"omitempty,max=32"`
	Bio              string            `json:"bio" validate:"omitempty,max=2000"`
	Ministries       []string          `json:"ministries" validate:"max=20,dive,max=80"`
	Address          Address           `json:"address"`
	EmergencyContact EmergencyContact  `json:"emergency_contact"`
	Notifications    NotificationPrefs `json:"notifications"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// FormSubmission is the stored envelope of an accepted form.
type FormSubmission struct {
	ID             int64     `db:"id" json:"id"`
	Kind           string    `db:"kind" json:"kind"`
	Reference      string    `db:"reference" json:"reference"`
	Email          string    `db:"email" json:"email"`
	Payload        string    `db:"payload" json:"payload"`
	IdempotencyKey *string   `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
