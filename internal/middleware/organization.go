package middleware

import (
	"github.com/gin-gonic/gin"

	"cylinder-recon/pkg/response"
)

const orgContextKey = "organization_id"

// RequireOrganization extracts the tenant from the X-Organization-ID header.
// Every data path is organization-scoped, so a missing header is a client
// error, not an anonymous request.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader("X-Organization-ID")
		if orgID == "" {
			response.BadRequest(c, "Missing X-Organization-ID header", "")
			c.Abort()
			return
		}
		c.Set(orgContextKey, orgID)
		c.Next()
	}
}

// OrganizationID returns the tenant set by RequireOrganization
func OrganizationID(c *gin.Context) string {
	return c.GetString(orgContextKey)
}
