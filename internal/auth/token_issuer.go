package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 7 * 24 * time.Hour
	bearerPrefix    = "Bearer "
)

var (
	ErrMissingSigningSecret = errors.New("token issuer: signing secret required")
	ErrMissingIssuer        = errors.New("token issuer: issuer required")
	ErrMissingToken         = errors.New("token issuer: token required")
	ErrInvalidToken         = errors.New("token issuer: invalid token")
	ErrExpiredToken         = errors.New("token issuer: token expired")
	ErrMissingUserID        = errors.New("token issuer: user id required")
)

// Claims is the caller identity carried by an access token.
type Claims struct {
	UserID       string `json:"user_id"`
	IsAdmin      bool   `json:"is_admin"`
	DepartmentID string `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the access token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates HS384 access tokens.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. A non-positive TTL falls back to seven days.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// Issue signs a token for the identity and returns it with its lifetime in seconds.
func (i *TokenIssuer) Issue(userID string, isAdmin bool, departmentID string) (string, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, ErrMissingUserID
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.tokenTTL)

	claims := Claims{
		UserID:       userID,
		IsAdmin:      isAdmin,
		DepartmentID: departmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate checks signature, issuer and expiry and returns the embedded claims.
func (i *TokenIssuer) Validate(tokenString string) (Claims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.signingSecret, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS384.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrMissingUserID
	}
	return *claims, nil
}

// BearerToken extracts the token from the Authorization header. When the header
// is absent and queryParam is set, the query parameter of that name is used.
func BearerToken(r *http.Request, queryParam string) (string, error) {
	if r == nil {
		return "", ErrMissingToken
	}
	token := ""
	header := r.Header.Get("Authorization")
	switch {
	case len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix):
		token = strings.TrimSpace(header[len(bearerPrefix):])
	case header == "" && queryParam != "":
		token = strings.TrimSpace(r.URL.Query().Get(queryParam))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
