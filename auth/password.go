package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when no cost is configured.
const DefaultCost = 12

func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	return string(bytes), err
}

func CheckPassword(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// Bcrypt hashes ledger passwords and membership secrets.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (string, error) { return HashPassword(plain, b.Cost) }

func (b Bcrypt) Compare(hash, plain string) bool { return CheckPassword(plain, hash) }
