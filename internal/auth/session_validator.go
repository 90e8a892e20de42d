package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "bearer "

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionIssuer     = errors.New("session validator: issuer required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMismatchedSessionPlayer  = errors.New("session validator: player claim does not match subject")
)

// SessionValidatorConfig describes how to validate player session tokens.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	// CookieName, when set, is consulted if the request carries no Authorization header.
	CookieName string
	Clock      func() time.Time
}

// SessionValidator validates HS256 player session tokens.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    strings.TrimSpace(cfg.CookieName),
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied token and returns its claims with PlayerID resolved.
func (v *SessionValidator) ValidateToken(tokenString string) (PlayerClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return PlayerClaims{}, ErrMissingSessionToken
	}

	claims := &PlayerClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return PlayerClaims{}, ErrExpiredSessionToken
		}
		return PlayerClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return PlayerClaims{}, ErrInvalidSessionToken
	}

	playerID, err := playerFromSubject(claims.Subject)
	if err != nil {
		return PlayerClaims{}, err
	}
	if claims.PlayerID != 0 && claims.PlayerID != playerID {
		return PlayerClaims{}, ErrMismatchedSessionPlayer
	}
	claims.PlayerID = playerID
	return *claims, nil
}

// ValidateRequest reads a bearer token, or the configured cookie, and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (PlayerClaims, error) {
	if r == nil {
		return PlayerClaims{}, ErrMissingSessionToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return PlayerClaims{}, ErrInvalidSessionToken
		}
		return v.ValidateToken(header[len(bearerPrefix):])
	}
	if v.cookieName == "" {
		return PlayerClaims{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil || cookie == nil {
		return PlayerClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(cookie.Value)
}
