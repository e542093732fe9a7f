package expiry

import (
	"testing"
	"time"

	"github.com/org/secretshare/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	cases := map[string]Unit{
		"m": Minutes, "minutes": Minutes, "H": Hours, "hours": Hours, "d": Days, " days ": Days,
	}
	for in, want := range cases {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUnit("weeks")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeadline(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(5*time.Minute), p.Deadline(now, 5, Minutes))
	assert.Equal(t, now.Add(3*time.Hour), p.Deadline(now, 3, Hours))
	assert.Equal(t, now.Add(48*time.Hour), p.Deadline(now, 2, Days))
}

func TestDeadlineClamps(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, p.Deadline(now, 60, Minutes), p.Deadline(now, 500, Minutes))
	assert.Equal(t, p.Deadline(now, 24, Hours), p.Deadline(now, 25, Hours))
	assert.Equal(t, p.Deadline(now, 7, Days), p.Deadline(now, 365, Days))
}

func TestDeadlineIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2026, 3, 1, 21, 0, 0, 0, loc)
	d := DefaultPolicy().Deadline(now, 1, Hours)
	assert.Equal(t, time.UTC, d.Location())
	assert.True(t, d.Equal(now.Add(time.Hour)))
}

func TestIsExpiredIsStrict(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, IsExpired(deadline, deadline))
	assert.False(t, IsExpired(deadline, deadline.Add(-time.Millisecond)))
	assert.True(t, IsExpired(deadline, deadline.Add(time.Millisecond)))
}
