// internal/middleware/helpers.go
package middleware

import (
	"slices"

	"entitlement-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// GetContributorID returns the authenticated contributor id.
func GetContributorID(c *gin.Context) (string, bool) {
	id := c.GetString(ctxContributorID)
	return id, id != ""
}

// MustGetContributorID gets the contributor id from context or panics
func MustGetContributorID(c *gin.Context) string {
	id, ok := GetContributorID(c)
	if !ok {
		panic("contributor_id not found in context")
	}
	return id
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	return c.GetStringSlice(ctxRoles)
}

// HasRole checks if user has role
func HasRole(c *gin.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, jwt.RoleAdmin) || HasRole(c, jwt.RoleSuperAdmin)
}
