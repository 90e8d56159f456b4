package server

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// isSafeName validates process names taken from query strings. Image names may
// contain spaces and dots but never path separators, ".." or control characters.
func isSafeName(s string) bool {
	if strings.TrimSpace(s) == "" || len(s) > 255 {
		return false
	}
	if strings.Contains(s, "..") || strings.ContainsAny(s, `/\:*?"<>|`) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
