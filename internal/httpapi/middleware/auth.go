package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bigfan007/ai-workmate/internal/auth"
	"github.com/bigfan007/ai-workmate/internal/common"
	"github.com/bigfan007/ai-workmate/internal/models"
)

const UserKey = "current_user"

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// AuthRequired verifies the bearer token and loads the user row into the
// request context. Missing or invalid tokens get 401, malformed tokens
// get 403.
func AuthRequired(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "authentication token required")
			c.Abort()
			return
		}

		claims, err := auth.VerifyJWT(token, secret)
		if err != nil {
			if errors.Is(err, auth.ErrTokenMalformed) {
				common.Fail(c, http.StatusForbidden, 40301, "malformed authentication token")
			} else {
				common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			}
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid authentication token")
			c.Abort()
			return
		}

		c.Set(UserKey, &user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and never
// rejects.
func OptionalAuth(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := auth.VerifyJWT(token, secret)
		if err != nil {
			c.Next()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err == nil {
			c.Set(UserKey, &user)
		}
		c.Next()
	}
}

// AdminRequired gates back-office routes. Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40101, "authentication token required")
			c.Abort()
			return
		}
		if user.Role != models.RoleAdmin {
			common.Fail(c, http.StatusForbidden, 40302, "administrator privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}
