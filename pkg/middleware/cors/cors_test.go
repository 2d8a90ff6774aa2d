package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(policy Policy, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(policy))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewAllowsListedOriginWithCredentials(t *testing.T) {
	w := serve(Policy{AllowedOrigins: []string{"https://club.example/"}}, http.MethodGet, "https://club.example")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://club.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestNewRejectsUnknownOriginPreflight(t *testing.T) {
	w := serve(Policy{AllowedOrigins: []string{"https://club.example"}}, http.MethodOptions, "https://evil.example")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewWildcardWithoutCredentials(t *testing.T) {
	w := serve(Policy{}, http.MethodOptions, "https://any.example")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}
