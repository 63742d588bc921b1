package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"agenda-service/internal/agenda"
	"agenda-service/internal/config"
)

// Claims are the JWT claims the service accepts: sub is the technician id.
type Claims struct {
	Role agenda.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the caller from a bearer token, either an HMAC
// signed JWT or one of the configured static tokens, and stores the
// resulting principal in the request context.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(cfg.JWTSecret))
	static := make(map[string]agenda.Principal, len(cfg.StaticTokens))
	for _, t := range cfg.StaticTokens {
		p := agenda.Principal{TechnicianID: t.TechnicianID, Role: agenda.RoleTechnician}
		if t.Admin {
			p.Role = agenda.RoleAdmin
		}
		static[t.Token] = p
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		if len(secret) > 0 {
			if p, err := ParseToken(secret, tokenStr); err == nil {
				setPrincipal(c, p)
				c.Next()
				return
			}
		}

		if p, ok := static[tokenStr]; ok {
			setPrincipal(c, p)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func setPrincipal(c *gin.Context, p agenda.Principal) {
	c.Request = c.Request.WithContext(agenda.WithPrincipal(c.Request.Context(), p))
}

func principal(c *gin.Context) agenda.Principal {
	p, _ := principalOK(c)
	return p
}

func principalOK(c *gin.Context) (agenda.Principal, bool) {
	return agenda.PrincipalFromContext(c.Request.Context())
}

// ParseToken verifies an HMAC signed token and returns its principal.
func ParseToken(secret []byte, tokenStr string) (agenda.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return secret, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil {
		return agenda.Principal{}, err
	}
	if claims.Subject == "" && claims.Role != agenda.RoleAdmin {
		return agenda.Principal{}, errors.New("token has no subject")
	}
	role := claims.Role
	if role != agenda.RoleAdmin {
		role = agenda.RoleTechnician
	}
	return agenda.Principal{TechnicianID: claims.Subject, Role: role}, nil
}

// MintToken signs a token for p valid for ttl. A zero ttl never expires.
func MintToken(secret []byte, p agenda.Principal, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: jwt secret is not configured", agenda.ErrValidation)
	}
	now := time.Now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.TechnicianID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
