package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "abc", formatValue("shortId", "abc", now))
	assert.Equal(t, "true", formatValue("passwordProtected", true, now))
	assert.Equal(t, "2026-05-01T09:00:00Z (expired)", formatValue("expiresAt", "2026-05-01T09:00:00Z", now))
	assert.Contains(t, formatValue("expiresAt", "2026-05-01T10:05:00Z", now), "(in 5m0s)")
	assert.Equal(t, "garbage", formatValue("expiresAt", "garbage", now))
}

func TestIDPath(t *testing.T) {
	assert.Equal(t, "/api/secrets/abc123", idPath("/api/secrets", "abc123"))
	assert.Equal(t, "/api/secrets/abc123/unlock", idPath("/api/secrets", "abc123", "unlock"))
	assert.Equal(t, "/api/requests/admin/a%2Fb", idPath("/api/requests/admin", "a/b"))
}
