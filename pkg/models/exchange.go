package models

import "time"

// ExchangeRequest is a two-party request: the admin side asks, the receiver side answers.
type ExchangeRequest struct {
	AdminShortID    string
	ReceiverShortID string
	Period          int        // lifetime in minutes once activated
	ExpiresAt       *time.Time // nil until the receiver first opens the request
	Content         *string
	CreatedAt       time.Time
}

// IsPending returns true if the receiver has not opened the request yet.
func (r *ExchangeRequest) IsPending() bool {
	return r.ExpiresAt == nil
}

// IsExpired returns true if the request was activated and its deadline has passed.
func (r *ExchangeRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// ContentOrEmpty returns the deposited content, or "" if nothing was written yet.
func (r *ExchangeRequest) ContentOrEmpty() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}
