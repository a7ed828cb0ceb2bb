package gateway

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
)

const tokenIssuer = "buddy-gateway"

// Issuer signs and verifies HS256 access tokens whose subject is the user's email.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue returns a signed token and its expiry.
func (i *Issuer) Issue(email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl).Truncate(time.Second)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to sign token", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken checks signature, issuer and expiry.
func (i *Issuer) VerifyAccessToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, i.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", apperrors.New(apperrors.ErrCodeTokenExpired, "Token expired").WithCause(err)
	}
	if err != nil {
		return "", apperrors.InvalidToken("Invalid token").WithCause(err)
	}
	return claims.Subject, nil
}

// VerifySignature checks only the signature, so an expired token is accepted.
// The refresh endpoint uses it to identify the caller.
func (i *Issuer) VerifySignature(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, i.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", apperrors.InvalidToken("Invalid token").WithCause(err)
	}
	return claims.Subject, nil
}

func (i *Issuer) key(*jwt.Token) (any, error) {
	return i.secret, nil
}
