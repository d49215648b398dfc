package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/platform/apperr"
)

// SentinelPassword is the string whose hash replaces the credential of an
// account that missed its initial-password window. It is never accepted as a
// login secret because expiry is checked before the hash comparison.
const SentinelPassword = "interdit"

const initialPasswordLength = 12

// ValidatePassword enforces the policy for user-chosen secrets: length >= 8
// with at least one upper, one lower, one digit and one punctuation rune.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return apperr.Validation("le mot de passe doit contenir au moins 8 caractères")
	}
	var upper, lower, digit, punct bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct = true
		}
	}
	if !upper || !lower || !digit || !punct {
		return apperr.Validation(
			"le mot de passe doit contenir une majuscule, une minuscule, un chiffre et un caractère spécial")
	}
	return nil
}

const (
	upperRunes = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerRunes = "abcdefghijkmnopqrstuvwxyz"
	digitRunes = "23456789"
	punctRunes = "!#$%&*+-=?@_"
)

// GeneratePassword draws a machine password from crypto/rand that satisfies
// ValidatePassword by construction.
func GeneratePassword() (string, error) {
	all := upperRunes + lowerRunes + digitRunes + punctRunes
	buf := make([]byte, initialPasswordLength)

	// One rune from each class guarantees the policy; the rest is uniform.
	classes := []string{upperRunes, lowerRunes, digitRunes, punctRunes}
	for i := range buf {
		pool := all
		if i < len(classes) {
			pool = classes[i]
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = pool[n.Int64()]
	}

	// Shuffle so class positions are not predictable.
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

// HashPassword returns the bcrypt hash of a plaintext secret.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext secret against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is compared against for unknown principals so that lookup misses
// take as long as a real bcrypt comparison.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("dummy-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()
