package secret

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/org/secretshare/internal/crypto"
	"github.com/org/secretshare/internal/expiry"
	"github.com/org/secretshare/internal/shortid"
	"github.com/org/secretshare/internal/storage"
	"github.com/org/secretshare/pkg/models"
	"github.com/rs/zerolog/log"
)

// Config is the immutable set of collaborators a Vault is built from.
type Config struct {
	Codec  crypto.Codec
	Gate   crypto.Gate
	Policy expiry.Policy
	IDs    shortid.Allocator
	Now    func() time.Time // nil means time.Now
}

// Vault creates and reads threshold-shared secrets.
type Vault struct {
	store storage.Backend
	cfg   Config
}

// NewVault creates a Vault.
func NewVault(store storage.Backend, cfg Config) *Vault {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Vault{store: store, cfg: cfg}
}

// CreateInput is a validated create request. Build it with NewCreateInput.
type CreateInput struct {
	content  []byte
	amount   int
	unit     expiry.Unit
	password string
}

// NewCreateInput validates the raw fields of a create request. An empty password means
// the secret is not gated.
func NewCreateInput(content string, amount int, unit, password string) (CreateInput, error) {
	if content == "" {
		return CreateInput{}, fmt.Errorf("%w: content must not be empty", models.ErrValidation)
	}
	if amount < 1 {
		return CreateInput{}, fmt.Errorf("%w: expiration amount must be at least 1", models.ErrValidation)
	}
	u, err := expiry.ParseUnit(unit)
	if err != nil {
		return CreateInput{}, err
	}
	return CreateInput{content: []byte(content), amount: amount, unit: u, password: password}, nil
}

// Create splits the content, stores it under a fresh short id and returns the record.
func (v *Vault) Create(ctx context.Context, in CreateInput) (*models.SecretRecord, error) {
	if len(in.content) == 0 {
		return nil, fmt.Errorf("%w: content must not be empty", models.ErrValidation)
	}
	now := v.cfg.Now().UTC()

	fragments, err := v.cfg.Codec.Split(in.content)
	if err != nil {
		return nil, v.logFailure("splitting secret", err)
	}

	rec := &models.SecretRecord{
		ExpiresAt: v.cfg.Policy.Deadline(now, in.amount, in.unit),
		Fragments: fragments,
		CreatedAt: now,
	}
	if in.password != "" {
		digest, err := v.cfg.Gate.Hash(in.password)
		if err != nil {
			return nil, v.logFailure("hashing password", err)
		}
		rec.PasswordHash = &digest
	}

	// A racing creator can take the id between the existence check and the insert;
	// the loser allocates again.
	for {
		id, err := v.cfg.IDs.Allocate(ctx, v.store.SecretExists)
		if err != nil {
			return nil, v.logFailure("allocating short id", err)
		}
		rec.ShortID = id
		err = v.store.InsertSecret(ctx, rec)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			log.Debug().Str("short_id", id).Msg("short id taken concurrently, retrying")
			continue
		}
		return nil, v.logFailure("storing secret", fmt.Errorf("%w: %v", models.ErrDependency, err))
	}

	secretsCreated.Inc()
	log.Info().Str("short_id", rec.ShortID).Time("expires_at", rec.ExpiresAt).
		Bool("password", rec.IsProtected()).Msg("secret created")
	return rec, nil
}

// ReadUnauthenticated returns the content of an ungated secret. Expired and missing
// secrets are both reported as ErrNotFound.
func (v *Vault) ReadUnauthenticated(ctx context.Context, shortID string) ([]byte, error) {
	rec, err := v.load(ctx, shortID)
	if err != nil {
		if errors.Is(err, models.ErrExpired) {
			return nil, fmt.Errorf("%w: secret %s", models.ErrNotFound, shortID)
		}
		return nil, err
	}
	if rec.IsProtected() {
		return nil, models.ErrPasswordRequired
	}
	return v.combine(rec)
}

// ReadAuthenticated returns the content of a password-gated secret. Expiry is reported
// as ErrExpired since the caller already knows the secret exists.
func (v *Vault) ReadAuthenticated(ctx context.Context, shortID, password string) ([]byte, error) {
	rec, err := v.load(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if !rec.IsProtected() {
		return nil, models.ErrNotPasswordProtected
	}
	if !v.cfg.Gate.Verify(password, *rec.PasswordHash) {
		return nil, models.ErrIncorrectPassword
	}
	return v.combine(rec)
}

// Status describes a live secret without revealing its content.
type Status struct {
	PasswordProtected bool
	ExpiresAt         time.Time
}

// Status reports whether a secret is gated and when it expires. It follows the same
// disclosure rule as ReadUnauthenticated.
func (v *Vault) Status(ctx context.Context, shortID string) (*Status, error) {
	rec, err := v.load(ctx, shortID)
	if err != nil {
		if errors.Is(err, models.ErrExpired) {
			return nil, fmt.Errorf("%w: secret %s", models.ErrNotFound, shortID)
		}
		return nil, err
	}
	return &Status{PasswordProtected: rec.IsProtected(), ExpiresAt: rec.ExpiresAt}, nil
}

// load fetches a record and deletes it if its deadline has passed.
func (v *Vault) load(ctx context.Context, shortID string) (*models.SecretRecord, error) {
	rec, err := v.store.GetSecret(ctx, shortID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: secret %s", models.ErrNotFound, shortID)
		}
		return nil, v.logFailure("loading secret", fmt.Errorf("%w: %v", models.ErrDependency, err))
	}
	now := v.cfg.Now()
	if expiry.IsExpired(rec.ExpiresAt, now) {
		// the sweeper may have removed it already; only the remover counts it
		n, err := v.store.DeleteSecret(ctx, shortID)
		if err != nil {
			log.Error().Err(err).Str("short_id", shortID).Msg("deleting expired secret")
		} else if n > 0 {
			secretsExpiredOnRead.Inc()
		}
		return nil, fmt.Errorf("%w: secret %s", models.ErrExpired, shortID)
	}
	return rec, nil
}

func (v *Vault) combine(rec *models.SecretRecord) ([]byte, error) {
	content, err := v.cfg.Codec.Combine(rec.Fragments)
	if err != nil {
		return nil, v.logFailure("reconstructing secret "+rec.ShortID, err)
	}
	return content, nil
}

// logFailure reports dependency and reconstruction failures to the operator log.
func (v *Vault) logFailure(op string, err error) error {
	if errors.Is(err, models.ErrDependency) || errors.Is(err, models.ErrReconstruction) {
		log.Error().Err(err).Str("op", op).Msg("secret vault failure")
	}
	return err
}
