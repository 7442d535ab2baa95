package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/ctxkey"
	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/logger"
)

// ClientRequestID ensures every request carries a client_request_id in
// its context, minting one if the caller did not supply one.
func ClientRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Client-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), ctxkey.ClientRequestID, id)
		requestLogger := logger.FromContext(ctx).With(slog.String("client_request_id", id))
		ctx = logger.IntoContext(ctx, requestLogger)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
