// Package auth turns bearer tokens into request identities.
// Tokens are HS256 JWTs carrying the user id in "sub" and the role in "role".
package auth

import (
	"errors"
	"fmt"
	"time"

	"civictrack/backend/internal/apperr"
	"civictrack/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies tokens with one shared secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. ttl applies to tokens issued without an
// explicit lifetime.
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source used for iat/exp and verification.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue генерує JWT для ідентичності
func (i *Issuer) Issue(id models.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	if _, err := models.ParseRole(string(id.Role)); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	now := i.now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"iss":  i.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies raw and returns the identity it carries. Every failure is
// Unauthenticated; the reason stays in the wrapped cause.
func (i *Issuer) Parse(raw string) (models.Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.Unauthenticated, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, apperr.New(apperr.Unauthenticated, "invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Identity{}, apperr.New(apperr.Unauthenticated, "invalid or expired token")
	}
	roleClaim, _ := claims["role"].(string)
	role, err := models.ParseRole(roleClaim)
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.Unauthenticated, "invalid or expired token", err)
	}
	return models.Identity{UserID: sub, Role: role}, nil
}
