package crypto

import (
	"errors"
	"fmt"

	"github.com/org/secretshare/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// Gate hashes and verifies retrieval passwords with bcrypt.
type Gate struct {
	Cost int
}

// NewGate returns a Gate with the given bcrypt cost; 0 selects bcrypt.DefaultCost.
func NewGate(cost int) (Gate, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return Gate{}, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return Gate{Cost: cost}, nil
}

// Hash returns a salted bcrypt digest of password.
func (g Gate) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), g.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password longer than 72 bytes", models.ErrValidation)
		}
		return "", fmt.Errorf("%w: hashing password: %v", models.ErrDependency, err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest.
func (g Gate) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
