package helper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidSignedRef = errors.New("signed reference is invalid or expired")

// RefSigner issues and verifies short-lived HS256 tokens naming a blob key.
// Clients upload directly, then hand the token back instead of the file.
type RefSigner struct {
	secret []byte
	now    func() time.Time
}

type refClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

func NewRefSigner(secret string, now func() time.Time) *RefSigner {
	if now == nil {
		now = time.Now
	}
	return &RefSigner{secret: []byte(secret), now: now}
}

func (s *RefSigner) Sign(key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if len(s.secret) == 0 {
		return "", errors.New("blob signing secret is not configured")
	}
	now := s.now()
	claims := refClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   "blob",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the blob key carried by a valid, unexpired token.
func (s *RefSigner) Verify(token string) (string, error) {
	claims := &refClaims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidSignedRef
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return "", ErrInvalidSignedRef
	}
	if claims.Key == "" {
		return "", ErrInvalidSignedRef
	}
	return claims.Key, nil
}
