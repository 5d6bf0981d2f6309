package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicCallerMiddleware tags the New Relic transaction started by nrgin
// with the authenticated caller and request id. It is a no-op when the agent
// is disabled.
func NewRelicCallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn != nil {
			if caller, ok := GetCaller(c); ok {
				txn.AddAttribute("caller.id", caller.ID)
				txn.AddAttribute("caller.role", string(caller.Role))
			}
			if id := c.GetString(requestIDKey); id != "" {
				txn.AddAttribute("request.id", id)
			}
		}

		c.Next()

		if txn != nil {
			for _, err := range c.Errors {
				txn.NoticeError(err.Err)
			}
		}
	}
}
