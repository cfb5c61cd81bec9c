package services

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// VerificationTokenTTL bounds how long an emailed verification link stays valid.
const VerificationTokenTTL = time.Hour

type emailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies the email-verification tokens embedded
// in verification links.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret, now: func() time.Time { return time.Now().UTC() }}
}

// Sign issues an HS256 token bound to email, expiring after ttl.
func (c *TokenCodec) Sign(email string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := emailClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// VerifyEmail checks signature and expiry and returns the embedded email.
func (c *TokenCodec) VerifyEmail(tok string) (string, error) {
	t, err := jwt.ParseWithClaims(tok, &emailClaims{},
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now() }))
	if err != nil {
		return "", err
	}
	if claims, ok := t.Claims.(*emailClaims); ok && t.Valid && claims.Email != "" {
		return claims.Email, nil
	}
	return "", errors.New("invalid token")
}
