package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

// operatorAudience separates admin tokens from any other HS256 token signed with the same key.
const operatorAudience = "gatekeeper-admin"

// OperatorAuth mints and verifies HS256 tokens for human operators of the admin surface.
type OperatorAuth struct {
	signKey []byte
	now     func() time.Time
}

// NewOperatorAuth constructs OperatorAuth.
func NewOperatorAuth(signKey []byte) *OperatorAuth {
	return &OperatorAuth{signKey: signKey, now: time.Now}
}

// Issue creates a signed HS256 JWT for the given operator.
func (o *OperatorAuth) Issue(operator string, ttl time.Duration) (string, time.Time, error) {
	if len(o.signKey) == 0 {
		return "", time.Time{}, errors.New("admin signing key is not configured")
	}
	if operator == "" {
		return "", time.Time{}, errors.New("empty operator name")
	}
	now := o.now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   operator,
		Audience:  jwt.ClaimStrings{operatorAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(o.signKey)
	return signed, exp, err
}

// Verify parses raw and returns the operator name.
func (o *OperatorAuth) Verify(raw string) (string, error) {
	if len(o.signKey) == 0 {
		return "", errs.ErrForbidden
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return o.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(operatorAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", errs.ErrInvalidToken)
	}
	return claims.Subject, nil
}
