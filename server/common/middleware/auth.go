package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workhub/server/common/transport/httpresp"
)

const (
	ctxAccessToken = "auth_access_token"
	ctxUserID      = "auth_user_id"
	ctxEmail       = "auth_email"
	ctxRole        = "auth_role"
)

type tokenAuth interface {
	ParseAuthContext(token string) (userID, email, role string, err error)
}

// BearerToken reads the access token from the Authorization header, falling
// back to the access_token query parameter used by websocket clients.
func BearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token, true
		}
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token, true
	}
	return "", false
}

func AuthRequired(auth tokenAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
			return
		}
		userID, email, role, err := auth.ParseAuthContext(token)
		if err != nil || strings.TrimSpace(userID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
			return
		}
		c.Set(ctxAccessToken, token)
		c.Set(ctxUserID, userID)
		c.Set(ctxEmail, email)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[strings.TrimSpace(role)] = struct{}{}
	}
	return func(c *gin.Context) {
		role, ok := ActorRole(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
			return
		}
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrInsufficientRole))
			return
		}
		c.Next()
	}
}

// ActorID returns the authenticated user id set by AuthRequired.
func ActorID(c *gin.Context) (string, bool) {
	return contextString(c, ctxUserID)
}

func ActorRole(c *gin.Context) (string, bool) {
	return contextString(c, ctxRole)
}

func contextString(c *gin.Context, key string) (string, bool) {
	raw, ok := c.Get(key)
	if !ok {
		return "", false
	}
	v, ok := raw.(string)
	return v, ok && v != ""
}
