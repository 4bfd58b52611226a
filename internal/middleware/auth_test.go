package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", Auth(testSecret), func(c *gin.Context) {
		user := c.GetString(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user": user})
	})
	return router
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthValidToken(t *testing.T) {
	router := newAuthRouter()
	token, err := IssueToken("stu1", testSecret, time.Hour)
	require.NoError(t, err)

	w := serve(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stu1"`)
}

func TestAuthMissingHeader(t *testing.T) {
	router := newAuthRouter()
	w := serve(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMalformedHeader(t *testing.T) {
	router := newAuthRouter()
	w := serve(router, "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthWrongSecret(t *testing.T) {
	router := newAuthRouter()
	token, err := IssueToken("stu1", "some-other-secret", time.Hour)
	require.NoError(t, err)

	w := serve(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthExpiredToken(t *testing.T) {
	router := newAuthRouter()
	token, err := IssueToken("stu1", testSecret, -time.Minute)
	require.NoError(t, err)

	w := serve(router, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMalformedUsernameClaim(t *testing.T) {
	// 签发侧已经拦掉不合法的用户名
	_, err := IssueToken("NOT VALID", testSecret, time.Hour)
	assert.Error(t, err)
}
