package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/rohanthewiz/serr"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances security and login latency.
const bcryptCost = 12

// HashPassword creates a bcrypt hash of the plaintext password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", serr.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", serr.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Account is the single set of credentials a server accepts.
type Account struct {
	Username     string
	PasswordHash string
}

// Enabled reports whether authentication is configured at all.
func (a Account) Enabled() bool {
	return a.Username != "" && a.PasswordHash != ""
}

// Authenticate checks a username and password against the account.
func (a Account) Authenticate(username, password string) bool {
	if !a.Enabled() {
		return false
	}
	nameOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.Username)) == 1
	// always run bcrypt so a wrong name costs the same as a wrong password
	passOK := CheckPassword(password, a.PasswordHash)
	return nameOK && passOK
}
