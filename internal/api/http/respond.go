package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Fail writes the common error body and stops the handler chain.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}

// Origin is where hosted checkout pages send the browser back to.
func Origin(c *gin.Context) string {
	if o := c.GetHeader("Origin"); o != "" {
		return o
	}
	if r := c.GetHeader("Referer"); r != "" {
		return strings.TrimRight(r, "/")
	}
	return "http://localhost:3000"
}

// ClientIP prefers the first X-Forwarded-For hop.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := c.GetHeader("X-Real-Ip"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

