package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"edutrack/internal/identity"
	"edutrack/internal/response"
)

const contextKeyPerson = "person"

// Bearer enforces HS256 bearer tokens and stores the caller's identity in
// the gin context.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthorized)
			return
		}
		claims, err := Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthorized)
			return
		}
		SetPerson(c, claims.Person())
		c.Next()
	}
}

// SetPerson stores p as the authenticated caller.
func SetPerson(c *gin.Context, p identity.Person) {
	c.Set(contextKeyPerson, p)
}

// PersonFrom returns the authenticated caller; the zero Person fails every
// authorization check.
func PersonFrom(c *gin.Context) identity.Person {
	v, _ := c.Get(contextKeyPerson)
	p, _ := v.(identity.Person)
	return p
}
