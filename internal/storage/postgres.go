package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/secretshare/pkg/models"
)

var _ Backend = (*PostgresBackend)(nil)

// uniqueViolation is the SQLSTATE for a primary key / unique constraint conflict.
const uniqueViolation = "23505"

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- Secrets ---

func (p *PostgresBackend) InsertSecret(ctx context.Context, rec *models.SecretRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO secrets (short_id, expires_at, fragments, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ShortID, rec.ExpiresAt, rec.Fragments, rec.PasswordHash, rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetSecret(ctx context.Context, shortID string) (*models.SecretRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT short_id, expires_at, fragments, password_hash, created_at
		 FROM secrets WHERE short_id = $1`,
		shortID,
	)
	var rec models.SecretRecord
	err := row.Scan(&rec.ShortID, &rec.ExpiresAt, &rec.Fragments, &rec.PasswordHash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (p *PostgresBackend) SecretExists(ctx context.Context, shortID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM secrets WHERE short_id = $1)`,
		shortID,
	).Scan(&exists)
	return exists, err
}

func (p *PostgresBackend) DeleteSecret(ctx context.Context, shortID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM secrets WHERE short_id = $1`, shortID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresBackend) DeleteExpiredSecrets(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM secrets WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Exchange requests ---

func (p *PostgresBackend) InsertRequest(ctx context.Context, req *models.ExchangeRequest) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO secret_requests (admin_short_id, receiver_short_id, period, expires_at, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		req.AdminShortID, req.ReceiverShortID, req.Period, req.ExpiresAt, req.Content, req.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

const selectRequest = `SELECT admin_short_id, receiver_short_id, period, expires_at, content, created_at
	FROM secret_requests `

func (p *PostgresBackend) GetRequestByAdmin(ctx context.Context, adminID string) (*models.ExchangeRequest, error) {
	return scanRequest(p.pool.QueryRow(ctx, selectRequest+`WHERE admin_short_id = $1`, adminID))
}

func (p *PostgresBackend) GetRequestByReceiver(ctx context.Context, receiverID string) (*models.ExchangeRequest, error) {
	return scanRequest(p.pool.QueryRow(ctx, selectRequest+`WHERE receiver_short_id = $1`, receiverID))
}

func scanRequest(row pgx.Row) (*models.ExchangeRequest, error) {
	var req models.ExchangeRequest
	err := row.Scan(&req.AdminShortID, &req.ReceiverShortID, &req.Period, &req.ExpiresAt, &req.Content, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if req.ExpiresAt != nil {
		t := req.ExpiresAt.UTC()
		req.ExpiresAt = &t
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return &req, nil
}

func (p *PostgresBackend) RequestIDExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM secret_requests WHERE admin_short_id = $1 OR receiver_short_id = $1)`,
		id,
	).Scan(&exists)
	return exists, err
}

func (p *PostgresBackend) ActivateRequest(ctx context.Context, adminID string, expiresAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE secret_requests SET expires_at = $1
		 WHERE admin_short_id = $2 AND expires_at IS NULL`,
		expiresAt, adminID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresBackend) UpdateRequestContent(ctx context.Context, adminID, content string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE secret_requests SET content = $1 WHERE admin_short_id = $2`,
		content, adminID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) DeleteExpiredRequests(ctx context.Context, now, pendingBefore time.Time) (int64, error) {
	var cutoff *time.Time
	if !pendingBefore.IsZero() {
		cutoff = &pendingBefore
	}
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM secret_requests
		 WHERE (expires_at IS NOT NULL AND expires_at < $1)
		    OR (expires_at IS NULL AND $2::timestamptz IS NOT NULL AND created_at < $2)`,
		now, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
