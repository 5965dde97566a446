package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// WorkerSecretAuth protects worker-facing maintenance endpoints with a shared
// static secret, sent either as a Bearer token or an X-Worker-Secret header.
// An empty configured secret disables the check (development mode).
func WorkerSecretAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		presented := c.GetHeader("X-Worker-Secret")
		if presented == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				presented = parts[1]
			}
		}

		if presented == "" {
			logWorkerAuthFailure(c, http.StatusUnauthorized, "missing_secret")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "worker secret is required"})
			return
		}

		if presented != secret {
			logWorkerAuthFailure(c, http.StatusForbidden, "invalid_secret")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "invalid worker secret"})
			return
		}

		c.Next()
	}
}

func logWorkerAuthFailure(c *gin.Context, status int, reason string) {
	log.Printf("worker_auth status=%d path=%s client_ip=%s reason=%s", status, c.Request.URL.Path, c.ClientIP(), reason)
}
