package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/org/secretshare/pkg/models"
)

// Default sharing parameters: every share is required to reconstruct.
const (
	DefaultShares    = 5
	DefaultThreshold = 5
)

// Codec splits secrets into hex-encoded Shamir shares and combines them back.
type Codec struct {
	Shares    int // total shares produced by Split
	Threshold int // minimum shares accepted by Combine
}

// NewCodec returns a Codec after checking the parameters are usable by the sharing scheme.
func NewCodec(shares, threshold int) (Codec, error) {
	c := Codec{Shares: shares, Threshold: threshold}
	if err := c.Validate(); err != nil {
		return Codec{}, err
	}
	return c, nil
}

// Validate checks 2 <= Threshold <= Shares <= 255.
func (c Codec) Validate() error {
	if c.Threshold < 2 {
		return errors.New("threshold must be at least 2")
	}
	if c.Threshold > c.Shares {
		return errors.New("threshold cannot exceed total shares")
	}
	if c.Shares > 255 {
		return errors.New("total shares cannot exceed 255")
	}
	return nil
}

// Split divides secret into c.Shares hex-encoded shares. The output is randomized: two
// splits of the same secret produce different shares.
func (c Codec) Split(secret []byte) ([]string, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: cannot split empty secret", models.ErrValidation)
	}
	parts, err := shamir.Split(secret, c.Shares, c.Threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: splitting secret: %v", models.ErrDependency, err)
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = hex.EncodeToString(p)
	}
	return out, nil
}

// Combine reconstructs the secret from hex-encoded shares.
func (c Codec) Combine(fragments []string) ([]byte, error) {
	if len(fragments) < c.Threshold {
		return nil, fmt.Errorf("%w: have %d shares, need %d", models.ErrReconstruction, len(fragments), c.Threshold)
	}
	parts := make([][]byte, len(fragments))
	for i, f := range fragments {
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding share %d: %v", models.ErrReconstruction, i, err)
		}
		parts[i] = b
	}
	secret, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrReconstruction, err)
	}
	return secret, nil
}
