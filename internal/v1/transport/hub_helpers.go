package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

// isValidBoardID accepts 1..128 characters drawn from the URL-safe set used
// for board ids. Anything else is a 404 before any upgrade happens.
func isValidBoardID(id string) bool {
	if id == "" || len(id) > wire.MaxBoardIDChars {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// validateOrigin checks the Origin header against the allowlist. An empty
// allowlist accepts every origin; a missing Origin header (non-browser
// client) is always accepted.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	if len(allowedOrigins) == 0 {
		return nil
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return nil
		}
	}
	return errors.New("origin not in allowlist")
}
