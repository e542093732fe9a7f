package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/secretshare/internal/storage"
	"github.com/org/secretshare/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func seed(t *testing.T, store *storage.MemoryBackend) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InsertSecret(ctx, &models.SecretRecord{ShortID: "dead", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.InsertSecret(ctx, &models.SecretRecord{ShortID: "live", ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, store.InsertRequest(ctx, &models.ExchangeRequest{AdminShortID: "a1", ReceiverShortID: "r1", Period: 1, CreatedAt: now.Add(-30 * 24 * time.Hour)}))
	require.NoError(t, store.InsertRequest(ctx, &models.ExchangeRequest{AdminShortID: "a2", ReceiverShortID: "r2", Period: 1, CreatedAt: now}))
	_, err := store.ActivateRequest(ctx, "a2", now.Add(-time.Minute))
	require.NoError(t, err)
}

func TestSweepOnceSecretsOnly(t *testing.T) {
	store := storage.NewMemoryBackend()
	seed(t, store)
	s := New(store, Config{Now: fixedNow})

	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Secrets: 1}, res)

	ok, _ := store.SecretExists(context.Background(), "live")
	assert.True(t, ok)
	ok, _ = store.RequestIDExists(context.Background(), "a2")
	assert.True(t, ok, "requests are left alone unless enabled")

	// idempotent
	res, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, int64(2), s.Runs())
	assert.Equal(t, now, s.LastRun())
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(lastRunSeconds))
}

func TestSweepOnceWithRequests(t *testing.T) {
	store := storage.NewMemoryBackend()
	seed(t, store)
	s := New(store, Config{Now: fixedNow, SweepRequests: true})

	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Secrets: 1, Requests: 1}, res)

	ok, _ := store.RequestIDExists(context.Background(), "a1")
	assert.True(t, ok, "pending requests survive without a TTL")

	s = New(store, Config{Now: fixedNow, SweepRequests: true, PendingRequestTTL: 7 * 24 * time.Hour})
	res, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Requests: 1}, res)
}

type failingStore struct {
	*storage.MemoryBackend
	calls atomic.Int64
}

func (f *failingStore) DeleteExpiredSecrets(context.Context, time.Time) (int64, error) {
	f.calls.Inc()
	return 0, errors.New("database unavailable")
}

func TestRunSurvivesFailures(t *testing.T) {
	store := &failingStore{MemoryBackend: storage.NewMemoryBackend()}
	s := New(store, Config{Interval: 5 * time.Millisecond, Now: fixedNow})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// a failed tick is retried on the next one
	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, s.Runs())
	assert.True(t, s.LastRun().IsZero())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := storage.NewMemoryBackend()
	seed(t, store)
	s := New(store, Config{Interval: 5 * time.Millisecond, Now: fixedNow})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.Runs() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	ok, _ := store.SecretExists(context.Background(), "dead")
	assert.False(t, ok)
}
