package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireEnabled answers 404 for every request while a feature is switched off.
func RequireEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.AbortWithStatusJSON(http.StatusNotFound, "Not Found")
			return
		}
		c.Next()
	}
}

// SharedToken checks the second space-separated part of the Authorization
// header against token. An empty configured token rejects every request.
func SharedToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || !tokenMatches(requestToken(c.GetHeader("Authorization")), token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

func requestToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
