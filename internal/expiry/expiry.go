// Package expiry turns relative lifetimes into absolute UTC deadlines.
package expiry

import (
	"fmt"
	"strings"
	"time"

	"github.com/org/secretshare/pkg/models"
)

// Unit is the granularity of a relative lifetime.
type Unit string

const (
	Minutes Unit = "m"
	Hours   Unit = "h"
	Days    Unit = "d"
)

// ParseUnit accepts the short ("m", "h", "d") and long ("minutes", ...) spellings.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "min", "minute", "minutes":
		return Minutes, nil
	case "h", "hour", "hours":
		return Hours, nil
	case "d", "day", "days":
		return Days, nil
	}
	return "", fmt.Errorf("%w: unknown expiration unit %q", models.ErrValidation, s)
}

func (u Unit) duration() time.Duration {
	switch u {
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Policy holds the per-unit ceilings. Amounts above a ceiling are truncated to it.
type Policy struct {
	MaxMinutes int
	MaxHours   int
	MaxDays    int
}

// DefaultPolicy caps lifetimes at 60 minutes, 24 hours or 7 days.
func DefaultPolicy() Policy {
	return Policy{MaxMinutes: 60, MaxHours: 24, MaxDays: 7}
}

// Clamp returns amount limited to the ceiling for unit.
func (p Policy) Clamp(amount int, unit Unit) int {
	limit := p.MaxMinutes
	switch unit {
	case Hours:
		limit = p.MaxHours
	case Days:
		limit = p.MaxDays
	}
	if amount > limit {
		return limit
	}
	return amount
}

// Deadline returns now + amount units, clamped, as a UTC instant.
func (p Policy) Deadline(now time.Time, amount int, unit Unit) time.Time {
	n := p.Clamp(amount, unit)
	return now.UTC().Add(time.Duration(n) * unit.duration())
}

// IsExpired reports whether now is strictly after deadline.
func IsExpired(deadline, now time.Time) bool {
	return now.After(deadline)
}
