package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenBytes = 64

// Claims is the payload of an access token. Subject carries the user id.
type Claims struct {
	Email           string `json:"email"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrUnauthorized
	}
	return id, nil
}

type Service struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewService(key []byte, issuer, audience string) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt signing key is not configured")
	}
	return &Service{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      domain.AccessTokenTTL,
		now:      time.Now,
	}, nil
}

func (s *Service) IssueAccessToken(u *domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Email:           u.Email,
		IsEmailVerified: u.IsEmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken returns an opaque, claim-free token.
func (s *Service) IssueRefreshToken() (string, error) {
	return RandomToken()
}

func (s *Service) ValidateAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// RandomToken returns 64 bytes from crypto/rand, base64 encoded. Also used
// for email verification and password reset tokens.
func RandomToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
