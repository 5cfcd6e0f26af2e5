package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strconv"
)

const (
	sessionTokenSize = 32

	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// NewSessionToken returns 256 bits from crypto/rand, base64url without padding.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidSessionTokenShape reports whether token could have been produced by
// NewSessionToken. Used to reject garbage before touching a store.
func ValidSessionTokenShape(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(sessionTokenSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == sessionTokenSize
}

// NewVerificationCode draws a six digit code uniformly from [100000, 999999].
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}

	code := strconv.FormatInt(codeMin+n.Int64(), 10)
	if len(code) != 6 {
		return "", errors.New("invalid verification code length")
	}
	return code, nil
}

// IsNumeric reports whether v is non-empty and only ASCII digits.
func IsNumeric(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
