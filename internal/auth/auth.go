// Package auth checks the single gallery account configured for the service.
package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"golang.org/x/crypto/bcrypt"
)

var _ port.Authenticator = (*StaticAuthenticator)(nil)

// StaticAuthenticator compares credentials against one configured account.
// The password may be stored in plain text or as a bcrypt hash.
type StaticAuthenticator struct {
	user     string
	password string
	hashed   bool
}

func NewStaticAuthenticator(user, password string) *StaticAuthenticator {
	return &StaticAuthenticator{
		user:     user,
		password: password,
		hashed:   isBcryptHash(password),
	}
}

func (a *StaticAuthenticator) Authenticate(user, password string) error {
	if a.user == "" || a.password == "" {
		return domain.ErrUnauthorized
	}
	userOK := subtle.ConstantTimeCompare([]byte(a.user), []byte(user)) == 1

	var passOK bool
	if a.hashed {
		passOK = VerifyPassword(a.password, password)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(a.password), []byte(password)) == 1
	}

	if !userOK || !passOK {
		return domain.ErrUnauthorized
	}
	return nil
}

// HashPassword produces a value suitable for APP_PASSWORD.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword verifies plaintext password against a bcrypt hash.
func VerifyPassword(passwordHash, candidate string) bool {
	if strings.TrimSpace(passwordHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}

func isBcryptHash(s string) bool {
	if !strings.HasPrefix(s, "$2") {
		return false
	}
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
