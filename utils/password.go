package utils

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordLength   = errors.New("password must be 8 to 72 characters long")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// ValidatePassword checks length limits. bcrypt ignores input past 72 bytes.
func ValidatePassword(password, confirm string) error {
	if n := utf8.RuneCountInString(password); n < 8 || len(password) > 72 {
		return ErrPasswordLength
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
