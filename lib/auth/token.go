package auth

import (
	"encoding/json"
	"strings"
)

// TokenClaims is the slice of the JWT payload the authorizer reads after
// verification. The token customizer writes these claims at login time.
type TokenClaims struct {
	Sub            string      `json:"sub"`
	Email          string      `json:"email"`
	UserID         json.Number `json:"user_id"`
	RoleCode       string      `json:"role_code"`
	HierarchyLevel json.Number `json:"hierarchy_level"`
	IsSuperAdmin   bool        `json:"isSuperAdmin"`
}

// BearerToken pulls the JWT out of the Authorization header, tolerating the
// lowercase header name HTTP APIs use.
func BearerToken(headers map[string]string) string {
	value := headers["Authorization"]
	if value == "" {
		value = headers["authorization"]
	}
	return strings.TrimPrefix(value, "Bearer ")
}
