// Package exchange implements the two-party request workflow: the admin side creates a
// request, the receiver side opens it (which starts the clock) and deposits a secret.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/secretshare/internal/expiry"
	"github.com/org/secretshare/internal/shortid"
	"github.com/org/secretshare/internal/storage"
	"github.com/org/secretshare/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// DefaultMaxPeriod bounds a request's active lifetime to one day.
const DefaultMaxPeriod = 24 * 60

var activations = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "secretshare_exchange_activations_total",
	Help: "Exchange requests activated by a first receiver read.",
})

func init() {
	prometheus.MustRegister(activations)
}

// Config is the immutable set of collaborators a Service is built from.
type Config struct {
	IDs       shortid.Allocator
	MaxPeriod int              // minutes
	Now       func() time.Time // nil means time.Now
}

// Service runs the request/response handshake.
type Service struct {
	store storage.Backend
	cfg   Config
}

// NewService creates a Service.
func NewService(store storage.Backend, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxPeriod <= 0 {
		cfg.MaxPeriod = DefaultMaxPeriod
	}
	return &Service{store: store, cfg: cfg}
}

// Period is a validated request lifetime in minutes.
type Period struct {
	minutes int
}

// Minutes returns the period length.
func (p Period) Minutes() int { return p.minutes }

// NewPeriod validates a lifetime against [1, max] minutes.
func (s *Service) NewPeriod(minutes int) (Period, error) {
	if minutes < 1 || minutes > s.cfg.MaxPeriod {
		return Period{}, fmt.Errorf("%w: period must be between 1 and %d minutes", models.ErrValidation, s.cfg.MaxPeriod)
	}
	return Period{minutes: minutes}, nil
}

// Create allocates an admin id and a receiver id and stores a pending request.
func (s *Service) Create(ctx context.Context, period Period) (*models.ExchangeRequest, error) {
	if period.minutes < 1 {
		return nil, fmt.Errorf("%w: period not set", models.ErrValidation)
	}
	for {
		adminID, err := s.cfg.IDs.Allocate(ctx, s.store.RequestIDExists)
		if err != nil {
			return nil, dependency("allocating admin id", err)
		}
		receiverID, err := s.cfg.IDs.Allocate(ctx, func(ctx context.Context, id string) (bool, error) {
			if id == adminID {
				return true, nil
			}
			return s.store.RequestIDExists(ctx, id)
		})
		if err != nil {
			return nil, dependency("allocating receiver id", err)
		}

		req := &models.ExchangeRequest{
			AdminShortID:    adminID,
			ReceiverShortID: receiverID,
			Period:          period.minutes,
			CreatedAt:       s.cfg.Now().UTC(),
		}
		err = s.store.InsertRequest(ctx, req)
		if err == nil {
			log.Info().Str("admin_id", adminID).Int("period", req.Period).Msg("exchange request created")
			return req, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, dependency("storing request", fmt.Errorf("%w: %v", models.ErrDependency, err))
		}
	}
}

// AdminRead returns whatever the receiver has deposited so far, or "". It never
// activates or expires the request.
func (s *Service) AdminRead(ctx context.Context, adminID string) (string, error) {
	req, err := s.store.GetRequestByAdmin(ctx, adminID)
	if err != nil {
		return "", notFound(adminID, err)
	}
	return req.ContentOrEmpty(), nil
}

// ReceiverRead opens the request. The first call starts the clock: expires_at becomes
// now + period and never changes again.
func (s *Service) ReceiverRead(ctx context.Context, receiverID string) (*models.ExchangeRequest, error) {
	req, err := s.store.GetRequestByReceiver(ctx, receiverID)
	if err != nil {
		return nil, notFound(receiverID, err)
	}
	now := s.cfg.Now().UTC()

	if req.IsPending() {
		deadline := now.Add(time.Duration(req.Period) * time.Minute)
		won, err := s.store.ActivateRequest(ctx, req.AdminShortID, deadline)
		if err != nil {
			return nil, dependency("activating request", fmt.Errorf("%w: %v", models.ErrDependency, err))
		}
		if won {
			activations.Inc()
			log.Info().Str("admin_id", req.AdminShortID).Time("expires_at", deadline).Msg("exchange request activated")
			req.ExpiresAt = &deadline
			return req, nil
		}
		// someone else activated it first; use their deadline
		if req, err = s.store.GetRequestByReceiver(ctx, receiverID); err != nil {
			return nil, notFound(receiverID, err)
		}
		if req.IsPending() {
			return nil, dependency("activating request", fmt.Errorf("%w: activation lost", models.ErrDependency))
		}
	}

	if expiry.IsExpired(*req.ExpiresAt, now) {
		return nil, fmt.Errorf("%w: request %s", models.ErrExpired, receiverID)
	}
	return req, nil
}

// ReceiverWrite deposits content into an opened, unexpired request.
func (s *Service) ReceiverWrite(ctx context.Context, receiverID, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: content must not be empty", models.ErrValidation)
	}
	req, err := s.store.GetRequestByReceiver(ctx, receiverID)
	if err != nil {
		return "", notFound(receiverID, err)
	}
	if req.IsPending() {
		return "", models.ErrUnauthorized
	}
	if expiry.IsExpired(*req.ExpiresAt, s.cfg.Now()) {
		return "", fmt.Errorf("%w: request %s", models.ErrExpired, receiverID)
	}
	if err := s.store.UpdateRequestContent(ctx, req.AdminShortID, content); err != nil {
		return "", notFound(receiverID, err)
	}
	return content, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: request %s", models.ErrNotFound, id)
	}
	return dependency("loading request", fmt.Errorf("%w: %v", models.ErrDependency, err))
}

func dependency(op string, err error) error {
	if errors.Is(err, models.ErrDependency) {
		log.Error().Err(err).Str("op", op).Msg("exchange failure")
	}
	return err
}
