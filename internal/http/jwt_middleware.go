package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vartalap/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el access token y guarda los claims en el contexto.
// Los streams SSE pueden pasar el token en ?access_token= porque algunos
// clientes no permiten cabeceras en EventSource.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{Error: "jwt not configured"})
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{Error: "missing token", Code: "unauthenticated"})
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			code := "unauthenticated"
			if errors.Is(err, service.ErrJWTExpired) {
				code = "session_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody{Error: "invalid token", Code: code})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

// ownerID devuelve el usuario autenticado; el middleware garantiza su presencia.
func ownerID(c *gin.Context) string {
	claims, _ := GetAuthClaims(c)
	return claims.UserID
}
