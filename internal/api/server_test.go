package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/org/secretshare/internal/crypto"
	"github.com/org/secretshare/internal/exchange"
	"github.com/org/secretshare/internal/expiry"
	"github.com/org/secretshare/internal/secret"
	"github.com/org/secretshare/internal/shortid"
	"github.com/org/secretshare/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Test server wiring ---

func newTestServer(t *testing.T) (*Server, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryBackend()

	codec, err := crypto.NewCodec(crypto.DefaultShares, crypto.DefaultThreshold)
	require.NoError(t, err)
	gate, err := crypto.NewGate(bcrypt.MinCost)
	require.NoError(t, err)
	ids, err := shortid.NewAllocator(shortid.DefaultLength)
	require.NoError(t, err)

	vault := secret.NewVault(store, secret.Config{
		Codec:  codec,
		Gate:   gate,
		Policy: expiry.DefaultPolicy(),
		IDs:    ids,
		Now:    clk.Now,
	})
	exch := exchange.NewService(store, exchange.Config{IDs: ids, MaxPeriod: exchange.DefaultMaxPeriod, Now: clk.Now})
	return NewServer(store, vault, exch, Config{ListenAddr: ":0"}), clk
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m), "body: %s", w.Body.String())
	return m
}

func createSecret(t *testing.T, h http.Handler, body map[string]any) string {
	t.Helper()
	w := postJSON(t, h, "/api/secrets", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	id, _ := resp["shortId"].(string)
	require.Len(t, id, shortid.DefaultLength)
	return id
}

// --- Health ---

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	assert.Equal(t, http.StatusOK, getJSON(t, h, "/livez").Code)
	assert.Equal(t, http.StatusOK, getJSON(t, h, "/readyz").Code)

	srv.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, h, "/readyz").Code)
	assert.Equal(t, http.StatusOK, getJSON(t, h, "/livez").Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	w := getJSON(t, h, "/livez")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "6f1c1d1e-3a0b-4c1e-9d2f-0a6b7c8d9e0f")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "6f1c1d1e-3a0b-4c1e-9d2f-0a6b7c8d9e0f", w.Header().Get("X-Request-ID"))
}

// --- Secrets ---

func TestSecretCreateAndRead(t *testing.T) {
	srv, clk := newTestServer(t)
	h := srv.BuildRouter()

	w := postJSON(t, h, "/api/secrets", map[string]any{"content": "hello", "amount": 5, "unit": "m"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	id := resp["shortId"].(string)
	assert.Equal(t, clk.Now().Add(5*time.Minute).Format(time.RFC3339), resp["expiresAt"])

	w = getJSON(t, h, "/api/secrets/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", decodeBody(t, w)["content"])

	w = getJSON(t, h, "/api/secrets/"+id+"/status")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody(t, w)
	assert.Equal(t, false, status["passwordProtected"])

	w = postJSON(t, h, "/api/secrets/"+id+"/unlock", map[string]any{"password": "anything"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecretPasswordProtected(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()
	id := createSecret(t, h, map[string]any{"content": "hello", "amount": 1, "unit": "h", "password": "p4ss"})

	w := getJSON(t, h, "/api/secrets/"+id)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, h, "/api/secrets/"+id+"/unlock", map[string]any{"password": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, h, "/api/secrets/"+id+"/unlock", map[string]any{"password": "p4ss"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", decodeBody(t, w)["content"])

	w = getJSON(t, h, "/api/secrets/"+id+"/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["passwordProtected"])
}

func TestSecretExpiry(t *testing.T) {
	srv, clk := newTestServer(t)
	h := srv.BuildRouter()
	open := createSecret(t, h, map[string]any{"content": "hello", "amount": 1, "unit": "m"})
	locked := createSecret(t, h, map[string]any{"content": "hello", "amount": 1, "unit": "m", "password": "p4ss"})

	clk.Advance(time.Minute + time.Millisecond)

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/secrets/"+open).Code)
	w := postJSON(t, h, "/api/secrets/"+locked+"/unlock", map[string]any{"password": "p4ss"})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestSecretValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	cases := []map[string]any{
		{"content": "", "amount": 1, "unit": "m"},
		{"content": "x", "amount": 0, "unit": "m"},
		{"content": "x", "amount": 1, "unit": "weeks"},
	}
	for _, body := range cases {
		w := postJSON(t, h, "/api/secrets", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
		assert.NotEmpty(t, decodeBody(t, w)["errors"])
	}

	req := httptest.NewRequest(http.MethodPost, "/api/secrets", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecretBodyLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	big := strings.Repeat("a", maxBodyBytes+1)
	w := postJSON(t, h, "/api/secrets", map[string]any{"content": big, "amount": 1, "unit": "m"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecretUnknown(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/secrets/nope1234").Code)
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/secrets/nope1234/status").Code)
	w := postJSON(t, h, "/api/secrets/nope1234/unlock", map[string]any{"password": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Exchange requests ---

func TestRequestLifecycle(t *testing.T) {
	srv, clk := newTestServer(t)
	h := srv.BuildRouter()

	w := postJSON(t, h, "/api/requests", map[string]any{"period": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	admin := resp["adminShortId"].(string)
	receiver := resp["receiverShortId"].(string)
	assert.NotEqual(t, admin, receiver)
	assert.EqualValues(t, 10, resp["period"])

	// writing before the receiver opened the request is refused
	w = postJSON(t, h, "/api/requests/receive/"+receiver, map[string]any{"content": "early"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = getJSON(t, h, "/api/requests/admin/"+admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", decodeBody(t, w)["content"])

	w = getJSON(t, h, "/api/requests/receive/"+receiver)
	require.Equal(t, http.StatusOK, w.Code)
	opened := decodeBody(t, w)
	assert.Equal(t, "", opened["content"])
	assert.Equal(t, clk.Now().Add(10*time.Minute).Format(time.RFC3339), opened["expiresAt"])

	w = postJSON(t, h, "/api/requests/receive/"+receiver, map[string]any{"content": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s3cret", decodeBody(t, w)["content"])

	w = getJSON(t, h, "/api/requests/admin/"+admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s3cret", decodeBody(t, w)["content"])

	// the deadline is fixed by the first open
	clk.Advance(5 * time.Minute)
	w = getJSON(t, h, "/api/requests/receive/"+receiver)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, opened["expiresAt"], decodeBody(t, w)["expiresAt"])

	clk.Advance(5*time.Minute + time.Millisecond)
	assert.Equal(t, http.StatusGone, getJSON(t, h, "/api/requests/receive/"+receiver).Code)
	w = postJSON(t, h, "/api/requests/receive/"+receiver, map[string]any{"content": "late"})
	assert.Equal(t, http.StatusGone, w.Code)

	// the admin can still collect what was deposited
	w = getJSON(t, h, "/api/requests/admin/"+admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s3cret", decodeBody(t, w)["content"])
}

func TestRequestIDsAreNotInterchangeable(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	resp := decodeBody(t, postJSON(t, h, "/api/requests", map[string]any{"period": 5}))
	admin := resp["adminShortId"].(string)
	receiver := resp["receiverShortId"].(string)

	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/requests/receive/"+admin).Code)
	assert.Equal(t, http.StatusNotFound, getJSON(t, h, "/api/requests/admin/"+receiver).Code)
}

func TestRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	assert.Equal(t, http.StatusBadRequest, postJSON(t, h, "/api/requests", map[string]any{"period": 0}).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, h, "/api/requests", map[string]any{"period": -3}).Code)

	resp := decodeBody(t, postJSON(t, h, "/api/requests", map[string]any{"period": 5}))
	receiver := resp["receiverShortId"].(string)
	require.Equal(t, http.StatusOK, getJSON(t, h, "/api/requests/receive/"+receiver).Code)
	w := postJSON(t, h, "/api/requests/receive/"+receiver, map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.BuildRouter()

	getJSON(t, h, "/livez")
	w := getJSON(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "secretshare_requests_total")
}
