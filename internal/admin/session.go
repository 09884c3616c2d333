// Package admin implements the administrative HTTP surface spec.md §4.6
// describes: session+basic auth, and the routes/metrics/health
// management endpoints. Grounded on original_source's
// auth/middleware.go session scheme and api/routes/admin.py's handlers.
package admin

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sessionTTL is how long an issued session token remains valid.
const sessionTTL = 3600 * time.Second

// encodeSession builds the opaque session token for username, issued at
// issuedAt: base64("username:unix_timestamp"), matching the original
// gateway's session token format exactly so the admin UI's stored token
// format doesn't need to change.
func encodeSession(username string, issuedAt time.Time) string {
	raw := fmt.Sprintf("%s:%f", username, float64(issuedAt.UnixNano())/1e9)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// decodeSession parses a session token, returning the username and
// whether it's still within its validity window as of now.
func decodeSession(token string, now time.Time) (username string, valid bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return "", false
	}
	issuedSec, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", false
	}
	issuedAt := time.Unix(0, int64(issuedSec*1e9))
	if now.Sub(issuedAt) > sessionTTL || now.Before(issuedAt) {
		return parts[0], false
	}
	return parts[0], true
}
