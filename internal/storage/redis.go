package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/org/secretshare/pkg/models"
	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

const (
	secretExpiryIndex  = "secrets:expiry"
	requestExpiryIndex = "requests:expiry"
	requestPendingSet  = "requests:pending"

	// keys outlive their deadline by this much so reads can still report Expired
	expiredGrace = time.Hour

	maxWatchRetries = 3
)

// RedisBackend is a Backend backed by Redis. Secrets carry a key TTL as a safety net; the
// sweep uses sorted-set indexes keyed by deadline.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, opts *redis.Options) (*RedisBackend, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() {
	r.client.Close() //nolint:errcheck
}

func secretKey(id string) string          { return "secret:" + id }
func requestAdminKey(id string) string    { return "request:admin:" + id }
func requestReceiverKey(id string) string { return "request:receiver:" + id }

func scoreOf(t time.Time) float64 { return float64(t.UnixMilli()) }

// exclusiveMax builds a ZRANGEBYSCORE bound matching scores strictly below t.
func exclusiveMax(t time.Time) string {
	return "(" + strconv.FormatInt(t.UnixMilli(), 10)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type redisSecret struct {
	ShortID      string    `json:"short_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	Fragments    []string  `json:"fragments"`
	PasswordHash *string   `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type redisRequest struct {
	AdminShortID    string     `json:"admin_short_id"`
	ReceiverShortID string     `json:"receiver_short_id"`
	Period          int        `json:"period"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Content         *string    `json:"content,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s redisRequest) model() *models.ExchangeRequest {
	m := models.ExchangeRequest(s)
	return &m
}

// --- Secrets ---

var insertSecretScript = redis.NewScript(`
	if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
		redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
		return 1
	end
	return 0
`)

func (r *RedisBackend) InsertSecret(ctx context.Context, rec *models.SecretRecord) error {
	data, err := json.Marshal(redisSecret(*rec))
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt) + expiredGrace
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	ok, err := insertSecretScript.Run(ctx, r.client,
		[]string{secretKey(rec.ShortID), secretExpiryIndex},
		data, ttl.Milliseconds(), scoreOf(rec.ExpiresAt), rec.ShortID,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisBackend) GetSecret(ctx context.Context, shortID string) (*models.SecretRecord, error) {
	data, err := r.client.Get(ctx, secretKey(shortID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s redisSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding secret %s: %w", shortID, err)
	}
	rec := models.SecretRecord(s)
	return &rec, nil
}

func (r *RedisBackend) SecretExists(ctx context.Context, shortID string) (bool, error) {
	n, err := r.client.Exists(ctx, secretKey(shortID)).Result()
	return n > 0, err
}

func (r *RedisBackend) DeleteSecret(ctx context.Context, shortID string) (int64, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, secretKey(shortID))
		pipe.ZRem(ctx, secretExpiryIndex, shortID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return del.Val(), nil
}

func (r *RedisBackend) DeleteExpiredSecrets(ctx context.Context, now time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, secretExpiryIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: exclusiveMax(now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = secretKey(id)
		members[i] = id
	}
	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, secretExpiryIndex, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return del.Val(), nil
}

// --- Exchange requests ---

var insertRequestScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1], KEYS[2], KEYS[3], KEYS[4]) > 0 then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[4], ARGV[2])
	redis.call('ZADD', KEYS[5], ARGV[3], ARGV[2])
	return 1
`)

func (r *RedisBackend) InsertRequest(ctx context.Context, req *models.ExchangeRequest) error {
	data, err := json.Marshal(redisRequest(*req))
	if err != nil {
		return err
	}
	ok, err := insertRequestScript.Run(ctx, r.client,
		[]string{
			requestAdminKey(req.AdminShortID),
			requestReceiverKey(req.AdminShortID),
			requestAdminKey(req.ReceiverShortID),
			requestReceiverKey(req.ReceiverShortID),
			requestPendingSet,
		},
		data, req.AdminShortID, scoreOf(req.CreatedAt),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisBackend) GetRequestByAdmin(ctx context.Context, adminID string) (*models.ExchangeRequest, error) {
	return r.getRequest(ctx, r.client, adminID)
}

func (r *RedisBackend) GetRequestByReceiver(ctx context.Context, receiverID string) (*models.ExchangeRequest, error) {
	adminID, err := r.client.Get(ctx, requestReceiverKey(receiverID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.getRequest(ctx, r.client, adminID)
}

func (r *RedisBackend) getRequest(ctx context.Context, c stringGetter, adminID string) (*models.ExchangeRequest, error) {
	data, err := c.Get(ctx, requestAdminKey(adminID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s redisRequest
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding request %s: %w", adminID, err)
	}
	return s.model(), nil
}

func (r *RedisBackend) RequestIDExists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, requestAdminKey(id), requestReceiverKey(id)).Result()
	return n > 0, err
}

// updateRequest runs fn against the current request under WATCH and writes the result back.
// fn returns false to skip the write.
func (r *RedisBackend) updateRequest(ctx context.Context, adminID string, fn func(req *models.ExchangeRequest, pipe redis.Pipeliner) bool) (bool, error) {
	key := requestAdminKey(adminID)
	var written bool
	txf := func(tx *redis.Tx) error {
		written = false
		req, err := r.getRequest(ctx, tx, adminID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !fn(req, pipe) {
				return nil
			}
			data, err := json.Marshal(redisRequest(*req))
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, data, redis.KeepTTL)
			written = true
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return false, err
	}
	return written, nil
}

// watch runs txf under WATCH on key, retrying when a concurrent writer touches the key.
func (r *RedisBackend) watch(ctx context.Context, txf func(tx *redis.Tx) error, key string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (r *RedisBackend) ActivateRequest(ctx context.Context, adminID string, expiresAt time.Time) (bool, error) {
	return r.updateRequest(ctx, adminID, func(req *models.ExchangeRequest, pipe redis.Pipeliner) bool {
		if req.ExpiresAt != nil {
			return false
		}
		t := expiresAt
		req.ExpiresAt = &t
		pipe.ZRem(ctx, requestPendingSet, adminID)
		pipe.ZAdd(ctx, requestExpiryIndex, redis.Z{Score: scoreOf(expiresAt), Member: adminID})
		return true
	})
}

func (r *RedisBackend) UpdateRequestContent(ctx context.Context, adminID, content string) error {
	_, err := r.updateRequest(ctx, adminID, func(req *models.ExchangeRequest, _ redis.Pipeliner) bool {
		c := content
		req.Content = &c
		return true
	})
	return err
}

func (r *RedisBackend) DeleteExpiredRequests(ctx context.Context, now, pendingBefore time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, requestExpiryIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: exclusiveMax(now),
	}).Result()
	if err != nil {
		return 0, err
	}
	if !pendingBefore.IsZero() {
		stale, err := r.client.ZRangeByScore(ctx, requestPendingSet, &redis.ZRangeBy{
			Min: "-inf",
			Max: exclusiveMax(pendingBefore),
		}).Result()
		if err != nil {
			return 0, err
		}
		ids = append(ids, stale...)
	}

	var total int64
	for _, adminID := range ids {
		n, err := r.deleteRequestIf(ctx, adminID, func(req *models.ExchangeRequest) bool {
			return sweepable(req, now, pendingBefore)
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// deleteRequestIf removes a request and its index entries when match holds for the
// current record. The check and the delete run under WATCH on the record key.
func (r *RedisBackend) deleteRequestIf(ctx context.Context, adminID string, match func(req *models.ExchangeRequest) bool) (int64, error) {
	key := requestAdminKey(adminID)
	var deleted int64
	txf := func(tx *redis.Tx) error {
		deleted = 0
		req, err := r.getRequest(ctx, tx, adminID)
		if errors.Is(err, ErrNotFound) {
			// index entry outlived its record
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, requestExpiryIndex, adminID)
				pipe.ZRem(ctx, requestPendingSet, adminID)
				return nil
			})
			return err
		}
		if err != nil {
			return err
		}
		if !match(req) {
			if req.IsPending() {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, requestPendingSet, adminID)
				return nil
			})
			return err
		}
		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, key)
			pipe.Del(ctx, requestReceiverKey(req.ReceiverShortID))
			pipe.ZRem(ctx, requestExpiryIndex, adminID)
			pipe.ZRem(ctx, requestPendingSet, adminID)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = del.Val()
		return nil
	}
	if err := r.watch(ctx, txf, key); err != nil {
		return 0, err
	}
	return deleted, nil
}
