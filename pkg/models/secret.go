package models

import "time"

// SecretRecord is a stored secret, split into threshold shares.
type SecretRecord struct {
	ShortID      string
	ExpiresAt    time.Time
	Fragments    []string // hex-encoded shares, in split order
	PasswordHash *string  // nil means no password gate
	CreatedAt    time.Time
}

// IsProtected reports whether reading the record requires a password.
func (r *SecretRecord) IsProtected() bool {
	return r.PasswordHash != nil
}

// IsExpired returns true if now is strictly past the record's deadline.
func (r *SecretRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
