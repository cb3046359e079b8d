package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa/internal/pkg/jwtutil"
	"docqa/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// AuthJWT requires an HS256 bearer token and stores its user on the
// context under ContextUserIDKey and ContextUsernameKey.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		switch {
		case errors.Is(err, jwtutil.ErrExpiredToken):
			response.Abort(c, http.StatusUnauthorized, response.CodeTokenExpired, "token expired")
			return
		case err != nil:
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
