package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil, nil, allowedOrigins)
	router := gin.New()
	router.GET("/collab/:boardId", hub.ServeCollab)
	return router
}

func upgradeHeaders(req *http.Request) {
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
}

func TestServeCollab_InvalidBoardID404(t *testing.T) {
	router := newTestRouter(nil)

	for _, boardID := range []string{"bad%20id", "has.dots", strings.Repeat("x", 200)} {
		req := httptest.NewRequest(http.MethodGet, "/collab/"+boardID, nil)
		upgradeHeaders(req)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "boardId %q", boardID)
	}
}

func TestServeCollab_PlainGet426(t *testing.T) {
	router := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/collab/board-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
	assert.Equal(t, "websocket", w.Header().Get("Upgrade"))
}

func TestServeCollab_DisallowedOrigin403(t *testing.T) {
	router := newTestRouter([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/collab/board-1", nil)
	upgradeHeaders(req)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIsValidBoardID(t *testing.T) {
	assert.True(t, isValidBoardID("board-1"))
	assert.True(t, isValidBoardID("A_b-9"))
	assert.False(t, isValidBoardID(""))
	assert.False(t, isValidBoardID("with space"))
	assert.False(t, isValidBoardID("emoji-🎨"))
	assert.False(t, isValidBoardID(strings.Repeat("a", 129)))
	assert.True(t, isValidBoardID(strings.Repeat("a", 128)))
}

func TestValidateOrigin(t *testing.T) {
	mk := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/collab/b", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	// Empty allowlist accepts everything.
	assert.NoError(t, validateOrigin(mk("https://anywhere.example"), nil))

	allowed := []string{"https://app.example.com", " https://staging.example.com "}
	assert.NoError(t, validateOrigin(mk("https://app.example.com"), allowed))
	assert.NoError(t, validateOrigin(mk("HTTPS://APP.EXAMPLE.COM"), allowed))
	assert.NoError(t, validateOrigin(mk("https://staging.example.com"), allowed), "allowlist entries are trimmed")
	assert.Error(t, validateOrigin(mk("https://evil.example.com"), allowed))

	// No Origin header (non-browser client) is accepted.
	assert.NoError(t, validateOrigin(mk(""), allowed))
}
