// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt with a fixed cost.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches hash. Any failure, including a
// malformed or empty hash, is a mismatch.
func (h *Hasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Burn runs a comparison against a throwaway hash so that a lookup miss costs
// about as much time as a wrong password.
func (h *Hasher) Burn(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("authcore-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
