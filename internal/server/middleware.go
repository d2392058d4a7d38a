package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ticketing/internal/apperror"
	authdomain "github.com/smallbiznis/ticketing/internal/auth/domain"
	obscontext "github.com/smallbiznis/ticketing/internal/observability/context"
)

const (
	contextUserIDKey = "user_id"
	contextRoleKey   = "role"
)

// AuthRequired accepts `Authorization: Bearer <jwt>` and stores the
// principal on the gin context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apperror.ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, principal.UserID)
		c.Set(contextRoleKey, principal.Role)
		ctx := obscontext.WithActor(c.Request.Context(), principal.UserID.String(), principal.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, apperror.ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal.UserID, principal.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func principalFromContext(c *gin.Context) (authdomain.Principal, bool) {
	raw, ok := c.Get(contextUserIDKey)
	if !ok {
		return authdomain.Principal{}, false
	}
	userID, ok := raw.(snowflake.ID)
	if !ok || userID == 0 {
		return authdomain.Principal{}, false
	}
	return authdomain.Principal{UserID: userID, Role: c.GetString(contextRoleKey)}, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
