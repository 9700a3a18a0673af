// Package auth builds the session identity the engine acts as. The backend
// owns authentication; this package only reads identity claims out of the
// bearer token the engine was configured with.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atendo/inboxsync/internal/api"
	"github.com/atendo/inboxsync/pkg/models"
)

// ErrNoSession indicates an operation that requires an authenticated user ran
// without one.
var ErrNoSession = errors.New("auth: no active session")

// Session is the identity attached to every use-case call.
type Session struct {
	User models.AuthUser
}

// CompanyID is the tenant scope for all gateway queries.
func (s *Session) CompanyID() string { return s.User.CompanyID }

// sessionClaims mirrors the identity claims the backend embeds in its access
// tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
	// Type is the backend role string (administrator|manager|staff).
	Type string `json:"type"`
}

// SessionFromToken extracts the session identity from a backend-issued access
// token. The signature is not verified here: the backend rejects forged
// tokens on every API call, and the claims are only used for local display
// and policy checks.
func SessionFromToken(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("auth: empty token")
	}

	claims := &sessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	if claims.CompanyID == "" {
		return nil, errors.New("auth: token has no company_id")
	}

	return &Session{
		User: models.AuthUser{
			ID:        claims.Subject,
			CompanyID: claims.CompanyID,
			Name:      claims.Name,
			Email:     claims.Email,
			Role:      api.MapRole(claims.Type),
		},
	}, nil
}

// StaticSession builds a session from explicitly configured identity fields,
// used when the deployment hands the engine an opaque (non-JWT) token.
func StaticSession(userID, companyID, name string, role models.UserRole) (*Session, error) {
	if userID == "" || companyID == "" {
		return nil, errors.New("auth: user id and company id are required")
	}
	if role == "" {
		role = models.RoleAttendant
	}
	return &Session{
		User: models.AuthUser{
			ID:        userID,
			CompanyID: companyID,
			Name:      name,
			Role:      role,
		},
	}, nil
}
