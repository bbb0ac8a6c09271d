package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates a failed admin login attempt.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// CredentialVerifier checks admin username/password pairs against a configured
// bcrypt hash.
type CredentialVerifier struct {
	username     string
	passwordHash []byte
}

// NewCredentialVerifier constructs a verifier for the configured admin account.
func NewCredentialVerifier(username, passwordHash string) (*CredentialVerifier, error) {
	if username == "" || passwordHash == "" {
		return nil, errors.New("auth: admin username and password hash are required")
	}
	return &CredentialVerifier{
		username:     username,
		passwordHash: []byte(passwordHash),
	}, nil
}

// Verify checks the supplied credentials and returns ErrInvalidCredentials on
// any mismatch, without distinguishing which field failed.
func (v *CredentialVerifier) Verify(username, password string) error {
	usernameMatch := subtle.ConstantTimeCompare([]byte(v.username), []byte(username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))
	if !usernameMatch || passwordErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for admin.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
