// Package shortid allocates compact random identifiers that are unique in a store key-space.
package shortid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/org/secretshare/pkg/models"
)

// Alphabet is the 62-symbol set identifiers are drawn from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultLength gives a space of 62^8 (about 2x10^14) identifiers.
const DefaultLength = 8

// bytes at or above this value are discarded so every symbol is equally likely
const rejectAbove = 256 - 256%len(Alphabet)

// ExistsFunc reports whether id is already taken in the target key-space.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// Allocator generates identifiers of a fixed length from a cryptographic source.
type Allocator struct {
	Length int
	Rand   io.Reader // nil means crypto/rand.Reader
}

// NewAllocator returns an Allocator producing ids of the given length.
func NewAllocator(length int) (Allocator, error) {
	if length <= 0 {
		return Allocator{}, errors.New("short id length must be positive")
	}
	return Allocator{Length: length}, nil
}

// Generate returns a random identifier without checking it against any store.
func (a Allocator) Generate() (string, error) {
	src := a.Rand
	if src == nil {
		src = rand.Reader
	}
	out := make([]byte, 0, a.Length)
	buf := make([]byte, a.Length*2)
	for len(out) < a.Length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("%w: reading entropy: %v", models.ErrDependency, err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == a.Length {
				break
			}
		}
	}
	return string(out), nil
}

// Allocate generates identifiers until exists reports one as free. The loop has no fixed
// bound; it only stops early when ctx is done or a dependency fails.
func (a Allocator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := a.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("%w: checking short id: %v", models.ErrDependency, err)
		}
		if !taken {
			return id, nil
		}
	}
}
