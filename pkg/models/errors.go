package models

import "errors"

// Error kinds surfaced by the vault and exchange services. Callers match them with errors.Is.
var (
	ErrValidation           = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrExpired              = errors.New("expired")
	ErrPasswordRequired     = errors.New("password required")
	ErrNotPasswordProtected = errors.New("secret is not password protected")
	ErrIncorrectPassword    = errors.New("incorrect password")
	ErrUnauthorized         = errors.New("request has not been opened by the receiver")
	ErrReconstruction       = errors.New("failed to reconstruct secret")
	ErrDependency           = errors.New("dependency failure")
)
