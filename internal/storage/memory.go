package storage

import (
	"context"
	"sync"
	"time"

	"github.com/org/secretshare/pkg/models"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps everything in process memory. It is used for development and tests.
type MemoryBackend struct {
	mu         sync.RWMutex
	secrets    map[string]*models.SecretRecord
	requests   map[string]*models.ExchangeRequest // keyed by admin id
	byReceiver map[string]string                  // receiver id -> admin id
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		secrets:    map[string]*models.SecretRecord{},
		requests:   map[string]*models.ExchangeRequest{},
		byReceiver: map[string]string{},
	}
}

func (m *MemoryBackend) InsertSecret(_ context.Context, rec *models.SecretRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[rec.ShortID]; ok {
		return ErrAlreadyExists
	}
	m.secrets[rec.ShortID] = cloneSecret(rec)
	return nil
}

func (m *MemoryBackend) GetSecret(_ context.Context, shortID string) (*models.SecretRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.secrets[shortID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSecret(rec), nil
}

func (m *MemoryBackend) SecretExists(_ context.Context, shortID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.secrets[shortID]
	return ok, nil
}

func (m *MemoryBackend) DeleteSecret(_ context.Context, shortID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[shortID]; !ok {
		return 0, nil
	}
	delete(m.secrets, shortID)
	return 1, nil
}

func (m *MemoryBackend) DeleteExpiredSecrets(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.secrets {
		if rec.ExpiresAt.Before(now) {
			delete(m.secrets, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) InsertRequest(_ context.Context, req *models.ExchangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenLocked(req.AdminShortID) || m.takenLocked(req.ReceiverShortID) {
		return ErrAlreadyExists
	}
	m.requests[req.AdminShortID] = cloneRequest(req)
	m.byReceiver[req.ReceiverShortID] = req.AdminShortID
	return nil
}

func (m *MemoryBackend) GetRequestByAdmin(_ context.Context, adminID string) (*models.ExchangeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[adminID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(req), nil
}

func (m *MemoryBackend) GetRequestByReceiver(_ context.Context, receiverID string) (*models.ExchangeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	adminID, ok := m.byReceiver[receiverID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRequest(m.requests[adminID]), nil
}

func (m *MemoryBackend) RequestIDExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.takenLocked(id), nil
}

func (m *MemoryBackend) takenLocked(id string) bool {
	_, admin := m.requests[id]
	_, receiver := m.byReceiver[id]
	return admin || receiver
}

func (m *MemoryBackend) ActivateRequest(_ context.Context, adminID string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[adminID]
	if !ok {
		return false, ErrNotFound
	}
	if req.ExpiresAt != nil {
		return false, nil
	}
	t := expiresAt
	req.ExpiresAt = &t
	return true, nil
}

func (m *MemoryBackend) UpdateRequestContent(_ context.Context, adminID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[adminID]
	if !ok {
		return ErrNotFound
	}
	c := content
	req.Content = &c
	return nil
}

func (m *MemoryBackend) DeleteExpiredRequests(_ context.Context, now, pendingBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, req := range m.requests {
		if sweepable(req, now, pendingBefore) {
			delete(m.byReceiver, req.ReceiverShortID)
			delete(m.requests, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() {}

func cloneSecret(rec *models.SecretRecord) *models.SecretRecord {
	c := *rec
	c.Fragments = append([]string(nil), rec.Fragments...)
	if rec.PasswordHash != nil {
		h := *rec.PasswordHash
		c.PasswordHash = &h
	}
	return &c
}

func cloneRequest(req *models.ExchangeRequest) *models.ExchangeRequest {
	c := *req
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		c.ExpiresAt = &t
	}
	if req.Content != nil {
		s := *req.Content
		c.Content = &s
	}
	return &c
}
