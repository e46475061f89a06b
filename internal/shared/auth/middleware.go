package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/types"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

// Claims extends JWT claims with the caller's role and village
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	VillageID string `json:"village_id,omitempty"`
}

// IssueToken signs a token for identity, valid for cfg.JWTExpiry
func IssueToken(cfg config.AuthConfig, identity auth.Identity, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: string(identity.Role),
	}
	if identity.VillageID != nil {
		claims.VillageID = identity.VillageID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a token and returns the identity it carries
func ParseToken(cfg config.AuthConfig, tokenString string) (auth.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return auth.Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return auth.Identity{}, fmt.Errorf("invalid token claims")
	}

	userID, err := types.ParseID(claims.Subject)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("invalid subject: %w", err)
	}
	role, err := auth.ParseRole(claims.Role)
	if err != nil {
		return auth.Identity{}, err
	}

	identity := auth.Identity{UserID: userID, Role: role}
	if claims.VillageID != "" {
		villageID, err := types.ParseID(claims.VillageID)
		if err != nil {
			return auth.Identity{}, fmt.Errorf("invalid village: %w", err)
		}
		identity.VillageID = &villageID
	}
	return identity, nil
}

// Middleware creates JWT authentication middleware
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid authorization header format")
				return
			}

			identity, err := ParseToken(cfg, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity stores identity in ctx
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// GetIdentity extracts the caller identity from request context.
// The zero Identity is returned when the request is anonymous.
func GetIdentity(ctx context.Context) auth.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(auth.Identity)
	if !ok {
		return auth.Identity{}
	}
	return identity
}

// RequireRoles creates middleware that requires one of the given roles
func RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity.IsZero() {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}

			for _, role := range roles {
				if identity.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
		})
	}
}

// RequireCapability creates middleware that requires a capability from the permission matrix
func RequireCapability(check func(auth.Capabilities) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity.IsZero() {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			if !check(identity.Can()) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
