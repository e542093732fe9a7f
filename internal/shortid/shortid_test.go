package shortid

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/org/secretshare/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	a, err := NewAllocator(DefaultLength)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := a.Generate()
		require.NoError(t, err)
		assert.Len(t, id, DefaultLength)
		for _, c := range id {
			assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected symbol %q", c)
		}
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerateSkipsBiasedBytes(t *testing.T) {
	// 0xff is rejected, 0x00 maps to '0', 0x3d (61) maps to 'z'
	src := bytes.NewReader([]byte{0xff, 0x00, 0xfe, 0x3d, 0, 0, 0, 0})
	a := Allocator{Length: 2, Rand: src}
	id, err := a.Generate()
	require.NoError(t, err)
	assert.Equal(t, "0z", id)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateEntropyFailureIsFatal(t *testing.T) {
	a := Allocator{Length: 8, Rand: failingReader{}}
	_, err := a.Generate()
	assert.ErrorIs(t, err, models.ErrDependency)

	_, err = a.Allocate(context.Background(), func(context.Context, string) (bool, error) {
		t.Fatal("exists must not be called when entropy fails")
		return false, nil
	})
	assert.ErrorIs(t, err, models.ErrDependency)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	a, _ := NewAllocator(4)
	calls := 0
	id, err := a.Allocate(context.Background(), func(_ context.Context, id string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Len(t, id, 4)
	assert.Equal(t, 3, calls)
}

func TestAllocateExistsFailure(t *testing.T) {
	a, _ := NewAllocator(8)
	_, err := a.Allocate(context.Background(), func(context.Context, string) (bool, error) {
		return false, errors.New("store down")
	})
	assert.ErrorIs(t, err, models.ErrDependency)
}

func TestAllocateStopsOnCancel(t *testing.T) {
	a, _ := NewAllocator(8)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := a.Allocate(ctx, func(context.Context, string) (bool, error) {
		cancel()
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAllocatorRejectsZeroLength(t *testing.T) {
	_, err := NewAllocator(0)
	assert.Error(t, err)
}
