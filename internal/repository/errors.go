package repository

import "errors"

// ErrInFlight means another request with the same idempotency key is still running.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")
