// Package server wires middleware and routes onto a gin engine, the
// way the teacher's internal/server/router.go does for its own
// surface.
package server

import (
	"github.com/gin-gonic/gin"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
	"github.com/haahuss/Ticketing-Security-Gate/internal/handler"
	"github.com/haahuss/Ticketing-Security-Gate/internal/server/middleware"
)

// SetupRouter installs the ambient middleware chain then registers the
// gate's HTTP surface (spec.md §6: POST /validate, plus the ambient
// health/ready probes).
func SetupRouter(
	r *gin.Engine,
	validateHandler *handler.ValidateHandler,
	healthHandler *handler.HealthHandler,
	cfg config.CORSConfig,
) *gin.Engine {
	r.Use(gin.Recovery())
	r.Use(middleware.ClientRequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg))

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.POST("/validate", validateHandler.Validate)

	return r
}
