package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
)

const (
	HeaderOperator       = "X-Operator-Id"
	contextOperatorIDKey = "operator_id"
)

// OperatorRequired admits requests from identities on the operator
// allow-list. When an operator token is configured the request must also
// carry it as a bearer token.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := s.cfg.OperatorToken; token != "" {
			if !bearerMatches(c.GetHeader("Authorization"), token) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
		}

		operatorID := strings.TrimSpace(c.GetHeader(HeaderOperator))
		if operatorID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !s.cfg.IsOperator(operatorID) {
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Set(contextOperatorIDKey, operatorID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "operator", operatorID))
		c.Next()
	}
}

func bearerMatches(header, token string) bool {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(raw)), []byte(token)) == 1
}
