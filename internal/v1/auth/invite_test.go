package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeInviteToken(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"raw token", "abc123", "abc123"},
		{"whitespace trimmed", "  abc123\n", "abc123"},
		{"query fragment", "invite=abc123", "abc123"},
		{"query fragment with extras", "invite=abc123&utm=x", "abc123"},
		{"leading question mark", "?invite=abc123", "abc123"},
		{"full share url", "https://app.example.com/b/board-1?invite=abc123", "abc123"},
		{"hash fragment", "https://app.example.com/b/board-1#invite=abc123", "abc123"},
		{"bare hash fragment", "#invite=abc123", "abc123"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeInviteToken(tc.in))
		})
	}
}

func TestHashInviteToken(t *testing.T) {
	// SHA-256("abc") — fixed vector so the stored-hash format never drifts.
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashInviteToken("abc"))

	assert.NotEqual(t, HashInviteToken("abc"), HashInviteToken("abd"))
	assert.Len(t, HashInviteToken(""), 64)
}
