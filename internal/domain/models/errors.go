package models

import "errors"

var (
	// ErrInsufficientData means a window is shorter than an algorithm needs.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnavailable means an upstream source refused or cannot serve the data.
	ErrUnavailable = errors.New("data unavailable")
	// ErrPriceUnavailable aborts evaluation of an instrument.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrNoRecord is returned by cooldown stores for unseen instruments.
	ErrNoRecord = errors.New("no cooldown record")
	// ErrMalformedSignal blocks delivery of an incomplete signal.
	ErrMalformedSignal = errors.New("malformed signal")
	// ErrCooldown is returned when an instrument is still cooling down.
	ErrCooldown = errors.New("instrument in cooldown")
	// ErrLocked is returned when another evaluation holds the instrument lock.
	ErrLocked = errors.New("instrument locked")
)
