package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxIdentityKey = "identity"
)

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}

// RequireAuth: Authorization: Bearer <token> を検証して context に Identity を詰める
func RequireAuth(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			unauthorized(c, "missing Authorization header")
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			unauthorized(c, "empty token")
			return
		}

		id, err := signer.Verify(tokenStr)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		c.Set(CtxIdentityKey, id)
		c.Next()
	}
}

// RequireRole: 許可ロールを列挙する。RequireAuth の後段に置くこと。
func RequireRole(roles ...Role) gin.HandlerFunc {
	roleSet := make(map[Role]struct{})
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "missing identity"})
			return
		}

		if _, allowed := roleSet[id.Role]; !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "forbidden: insufficient permissions"})
			return
		}

		c.Next()
	}
}

// IdentityFrom returns the authenticated identity set by RequireAuth.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
