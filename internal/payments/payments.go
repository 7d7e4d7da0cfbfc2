// Package payments creates and looks up card payment intents for donations.
package payments

import "errors"

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrProvider       = errors.New("payment provider error")
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)
