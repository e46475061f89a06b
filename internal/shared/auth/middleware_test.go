package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/types"
)

var testAuthConfig = config.AuthConfig{JWTSecret: "test-secret", JWTExpiry: time.Hour, Issuer: "test"}

func TestIssueAndParseToken(t *testing.T) {
	village := types.NewID()
	identity := auth.Identity{UserID: types.NewID(), Role: auth.RolePsychologist, VillageID: &village}

	token, expiresAt, err := IssueToken(testAuthConfig, identity, time.Now())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("Expected expiry in the future")
	}

	parsed, err := ParseToken(testAuthConfig, token)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if parsed.UserID != identity.UserID || parsed.Role != identity.Role {
		t.Errorf("Expected %+v, got %+v", identity, parsed)
	}
	if parsed.VillageID == nil || *parsed.VillageID != village {
		t.Errorf("Expected village %s, got %v", village, parsed.VillageID)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	identity := auth.Identity{UserID: types.NewID(), Role: auth.RoleDeclarant}

	token, _, _ := IssueToken(testAuthConfig, identity, time.Now())
	other := testAuthConfig
	other.JWTSecret = "other"
	if _, err := ParseToken(other, token); err == nil {
		t.Error("Expected error for wrong secret")
	}

	expired, _, _ := IssueToken(testAuthConfig, identity, time.Now().Add(-2*time.Hour))
	if _, err := ParseToken(testAuthConfig, expired); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestMiddleware(t *testing.T) {
	identity := auth.Identity{UserID: types.NewID(), Role: auth.RoleSafeguardingOfficer}
	token, _, _ := IssueToken(testAuthConfig, identity, time.Now())

	var seen auth.Identity
	handler := Middleware(testAuthConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}

	if seen.UserID != identity.UserID {
		t.Errorf("Expected identity in context, got %+v", seen)
	}
}

func TestRequireCapability(t *testing.T) {
	handler := RequireCapability(func(c auth.Capabilities) bool { return c.CanManageUsers })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	tests := []struct {
		name   string
		role   auth.Role
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"it admin", auth.RoleITAdmin, http.StatusOK},
		{"psychologist", auth.RolePsychologist, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.role != "" {
				req = req.WithContext(WithIdentity(req.Context(), auth.Identity{UserID: types.NewID(), Role: tt.role}))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
