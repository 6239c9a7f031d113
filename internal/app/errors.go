package app

import "errors"

var (
	// ErrSlotTaken rejects a create or time-changing update whose window
	// overlaps a confirmed booking or a remote busy interval.
	ErrSlotTaken = errors.New("time slot not available")

	// ErrBookingNotFound is returned for reads and mutations on unknown ids.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrRuleNotFound is returned for mutations on unknown availability rules.
	ErrRuleNotFound = errors.New("availability rule not found")
)
