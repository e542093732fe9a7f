package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/secretshare/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert collides with an existing primary key.
var ErrAlreadyExists = errors.New("already exists")

// Backend defines the persistence interface for secrets and exchange requests.
// Every method is a single atomic store operation.
type Backend interface {
	// Secrets
	InsertSecret(ctx context.Context, rec *models.SecretRecord) error
	GetSecret(ctx context.Context, shortID string) (*models.SecretRecord, error)
	SecretExists(ctx context.Context, shortID string) (bool, error)
	DeleteSecret(ctx context.Context, shortID string) (int64, error)
	DeleteExpiredSecrets(ctx context.Context, now time.Time) (int64, error)

	// Exchange requests
	InsertRequest(ctx context.Context, req *models.ExchangeRequest) error
	GetRequestByAdmin(ctx context.Context, adminID string) (*models.ExchangeRequest, error)
	GetRequestByReceiver(ctx context.Context, receiverID string) (*models.ExchangeRequest, error)
	// RequestIDExists checks id against both the admin and the receiver key-spaces.
	RequestIDExists(ctx context.Context, id string) (bool, error)
	// ActivateRequest sets expires_at only if it is still unset. It returns false when
	// another caller activated the request first.
	ActivateRequest(ctx context.Context, adminID string, expiresAt time.Time) (bool, error)
	UpdateRequestContent(ctx context.Context, adminID, content string) error
	// DeleteExpiredRequests removes activated requests past their deadline and, when
	// pendingBefore is non-zero, never-activated requests created before it.
	DeleteExpiredRequests(ctx context.Context, now, pendingBefore time.Time) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}

// sweepable reports whether DeleteExpiredRequests may remove req: activated and past its
// deadline, or never opened and created before pendingBefore (when set).
func sweepable(req *models.ExchangeRequest, now, pendingBefore time.Time) bool {
	if req.ExpiresAt != nil {
		return req.ExpiresAt.Before(now)
	}
	return !pendingBefore.IsZero() && req.CreatedAt.Before(pendingBefore)
}
