package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/validate"
)

// ContextUserKey 是认证用户名在 Gin Context 里的键。
const ContextUserKey = "username"

// ErrMissingAuthHeader 表示缺少 Authorization 头。
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回验证 JWT token 的 Gin 中间件。
// 身份由部署侧的登录网关签发，token 里只带一个 username claim；
// 用户名语法在这里就校验掉，后续层可以信任 Context 里的值。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Malformed token format")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) {
				if validationError.Errors&jwt.ValidationErrorExpired != 0 {
					logCtx.Warn("Reason: Token is expired")
				}
				if validationError.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
					logCtx.Warn("Reason: Token signature is invalid")
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		usernameClaim, ok := claims["username"]
		if !ok {
			logrus.Error("Auth middleware: 'username' claim missing in token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Token processing error: missing username"})
			c.Abort()
			return
		}
		username, ok := usernameClaim.(string)
		if !ok || !validate.Username(username) {
			logrus.Warnf("Auth middleware: 'username' claim is not a well-formed username: %v", usernameClaim)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token carries an invalid username"})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, username)
		logrus.WithField("username", username).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// IssueToken 为 username 签发一个 HS256 token。
// 服务自身不做注册登录，这个函数给运维脚本和测试用。
func IssueToken(username, secret string, ttl time.Duration) (string, error) {
	if !validate.Username(username) {
		return "", fmt.Errorf("cannot issue token for malformed username %q", username)
	}
	claims := jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// extractToken 从 Authorization 头提取 Bearer Token。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串。
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
