package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the transaction started by nrgin with the
// caller and ride, and reports handler errors. Without a transaction it is
// a no-op.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if actor, ok := Actor(c); ok {
			txn.AddAttribute("user_id", actor.UserID)
			txn.AddAttribute("user_role", string(actor.Role))
		}
		if rideID := c.Param("id"); rideID != "" {
			txn.AddAttribute("path_id", rideID)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
