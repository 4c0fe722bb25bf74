package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// NormalizeInviteToken extracts the bare token from the forms clients send:
// the raw token, an "invite=..." query fragment, a full share URL with an
// "?invite=" parameter, or a "#invite=" hash fragment. Whitespace is trimmed.
func NormalizeInviteToken(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "#invite="); i >= 0 {
		s = s[i+len("#invite="):]
		if j := strings.IndexAny(s, "&#"); j >= 0 {
			s = s[:j]
		}
		return s
	}

	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			if tok := u.Query().Get("invite"); tok != "" {
				return tok
			}
		}
	}

	if strings.HasPrefix(s, "invite=") {
		s = strings.TrimPrefix(s, "invite=")
		if j := strings.IndexAny(s, "&#"); j >= 0 {
			s = s[:j]
		}
		return s
	}

	if strings.HasPrefix(s, "?") {
		if vals, err := url.ParseQuery(strings.TrimPrefix(s, "?")); err == nil {
			if tok := vals.Get("invite"); tok != "" {
				return tok
			}
		}
	}

	return s
}

// HashInviteToken returns the lowercase hex SHA-256 digest of the token.
// Only hashes are stored and compared; plaintext tokens never touch the
// database.
func HashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
