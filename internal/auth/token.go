package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
)

var (
	ErrMissingToken  = errors.New("authorization required")
	ErrMalformedAuth = errors.New("invalid authorization header format")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrUnknownRole   = errors.New("token carries an unknown role")
)

// Claims is the JWT payload. Subject holds the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: "doctor-appointment-booking",
		now:    time.Now,
	}
}

// Issue signs a token for actor valid for ttl. The HTTP API never calls it;
// seed and simulate use it to mint development tokens.
func (m *Manager) Issue(actor booking.Actor, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a raw token and returns the actor it identifies.
func (m *Manager) Parse(raw string) (booking.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return booking.Actor{}, ErrExpiredToken
		}
		return booking.Actor{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return booking.Actor{}, ErrInvalidToken
	}
	role, ok := booking.ParseRole(claims.Role)
	if !ok {
		return booking.Actor{}, ErrUnknownRole
	}
	return booking.Actor{UserID: userID, Role: role}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMalformedAuth
	}
	return strings.TrimSpace(token), nil
}
