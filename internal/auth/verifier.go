package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"roomchat-service/internal/repositories"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrProfileIncomplete = errors.New("profile incomplete")
)

// Identity is the verified caller resolved from a bearer token.
type Identity struct {
	UserID           int
	Name             string
	Username         string
	ProfileCompleted bool
}

// Verifier resolves opaque bearer tokens to user identities.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier validates HS256 tokens issued by the credential service and
// resolves the subject against the shared user directory.
type JWTVerifier struct {
	secret []byte
	users  repositories.UserRepository
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string, users repositories.UserRepository) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), users: users}
}

// Verify parses and validates the token, then loads the user it names.
// The ProfileCompleted gate is enforced by callers, not here.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	userID, err := subjectUserID(claims)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	user, err := v.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}

	return Identity{
		UserID:           user.ID,
		Name:             user.Name,
		Username:         user.Username,
		ProfileCompleted: user.ProfileCompleted,
	}, nil
}

// subjectUserID accepts the standard "sub" claim or the legacy "id" claim
// the credential service emitted historically.
func subjectUserID(claims jwt.MapClaims) (int, error) {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return strconv.Atoi(sub)
	}
	if raw, ok := claims["id"]; ok {
		switch id := raw.(type) {
		case float64:
			return int(id), nil
		case string:
			return strconv.Atoi(id)
		}
	}
	return 0, ErrInvalidToken
}
