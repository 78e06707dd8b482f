package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are served without a bearer token: health probes and login.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/v1/auth/login": true,
}

// AuthSkipper reports whether the matched route is public. Pass it as the
// Skipper on JWTConfig.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is served without authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
