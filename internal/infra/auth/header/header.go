// Package header reads identity asserted by a trusted fronting proxy. It
// performs no verification and is refused in production.
package header

import (
	"net/http"
	"strings"

	"cityos/internal/domain"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRoles      = "X-User-Roles"
	HeaderExternalUserID = "X-External-User-ID"
)

// Claims returns the asserted identity, or empty claims when no user id is
// present. Roles are a comma separated list.
func Claims(h http.Header) domain.AuthClaims {
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID == "" {
		return domain.AuthClaims{Roles: []string{}}
	}
	return domain.AuthClaims{
		UserID:         userID,
		Roles:          splitRoles(h.Get(HeaderUserRoles)),
		ExternalUserID: strings.TrimSpace(h.Get(HeaderExternalUserID)),
	}
}

func splitRoles(raw string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		role := strings.TrimSpace(part)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
