package middleware

import (
	"net/http"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// RequireRole rejects tokens whose role is not the given one. Must run after RequireJWT.
func RequireRole(role model.Role) gin.HandlerFunc {
	denied := response.ErrTeacherAccessOnly
	if role == model.RoleStudent {
		denied = response.ErrStudentAccessOnly
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, denied)
			return
		}
		c.Next()
	}
}
