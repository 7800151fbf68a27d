package utils

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

const (
	VerificationCodeMin = 100000
	VerificationCodeMax = 999999
)

// RandomVerificationCode draws a 6-digit code uniformly from
// [VerificationCodeMin, VerificationCodeMax].
func RandomVerificationCode() (string, error) {
	span := big.NewInt(VerificationCodeMax - VerificationCodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(VerificationCodeMin)).String(), nil
}

// RandomPassword returns a URL-safe random secret of byteLen entropy bytes.
func RandomPassword(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomToken is RandomPassword for opaque tokens; it panics if the system
// random source fails.
func RandomToken(byteLen int) string {
	s, err := RandomPassword(byteLen)
	if err != nil {
		panic(err)
	}
	return s
}
