package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("identity token is invalid")
	ErrTokenExpired = errors.New("identity token has expired")
)

// Identity is the verified subject of an identity token.
type Identity struct {
	UserID  string
	Email   string
	Name    string
	IsAdmin bool
}

type identityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies the signed identity tokens that back
// customer and admin sessions.
type AuthService struct {
	secret   []byte
	tokenTTL time.Duration
}

const defaultTokenTTL = 24 * time.Hour

func NewAuthService(secret string) (*AuthService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &AuthService{
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
	}, nil
}

// IssueToken signs an identity token for the user.
func (s *AuthService) IssueToken(identity Identity) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := time.Now()
	claims := identityClaims{
		Email:   identity.Email,
		Name:    identity.Name,
		IsAdmin: identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken validates the signature and expiry of an identity token
// and returns the identity it carries.
func (s *AuthService) VerifyToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		IsAdmin: claims.IsAdmin,
	}, nil
}
