package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atendo/inboxsync/pkg/models"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSessionFromToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub":        "u1",
		"name":       "Ana",
		"email":      "ana@x.com",
		"company_id": "co1",
		"type":       "staff",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	session, err := SessionFromToken(token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if session.User.ID != "u1" || session.User.CompanyID != "co1" {
		t.Errorf("identity = %+v", session.User)
	}
	if session.User.Role != models.RoleAttendant {
		t.Errorf("Role = %v, want ATTENDANT", session.User.Role)
	}
	if session.CompanyID() != "co1" {
		t.Errorf("CompanyID() = %q", session.CompanyID())
	}
}

func TestSessionFromTokenRejectsMissingClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{name: "no subject", claims: jwt.MapClaims{"company_id": "co1"}},
		{name: "no company", claims: jwt.MapClaims{"sub": "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SessionFromToken(signedToken(t, tt.claims)); err == nil {
				t.Error("SessionFromToken() accepted incomplete claims")
			}
		})
	}
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	if _, err := SessionFromToken("not-a-jwt"); err == nil {
		t.Error("SessionFromToken() accepted a malformed token")
	}
	if _, err := SessionFromToken("  "); err == nil {
		t.Error("SessionFromToken() accepted an empty token")
	}
}

func TestStaticSession(t *testing.T) {
	session, err := StaticSession("u1", "co1", "Ana", "")
	if err != nil {
		t.Fatalf("StaticSession() error = %v", err)
	}
	if session.User.Role != models.RoleAttendant {
		t.Errorf("default role = %v, want ATTENDANT", session.User.Role)
	}
	if _, err := StaticSession("", "co1", "", models.RoleManager); err == nil {
		t.Error("StaticSession() accepted empty user id")
	}
}
