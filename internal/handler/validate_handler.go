// Package handler adapts the gin transport layer onto the service
// layer, mirroring the teacher's internal/handler style: thin
// handlers, request/response structs with binding tags, errors
// translated once at the edge.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/apperr"
	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/clientip"
	"github.com/haahuss/Ticketing-Security-Gate/internal/service"
)

// ValidateHandler serves POST /validate.
type ValidateHandler struct {
	pipeline *service.Pipeline
}

func NewValidateHandler(pipeline *service.Pipeline) *ValidateHandler {
	return &ValidateHandler{pipeline: pipeline}
}

type validateRequestBody struct {
	QRToken string `json:"qr_token" binding:"required"`
	EventID string `json:"event_id" binding:"required"`
}

// Validate handles POST /validate. Per spec.md §6 the HTTP status is
// always 200 for a completed decision. A malformed body gets 400; a
// pipeline error gets the status its *apperr.ApplicationError carries
// (503 for the fail-closed ephemeral-store gates C2-C4), or 500.
func (h *ValidateHandler) Validate(c *gin.Context) {
	var body validateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	req := service.ValidateRequest{
		QRToken:        body.QRToken,
		EventID:        body.EventID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		IP:             clientip.Get(c),
		UserAgent:      c.GetHeader("User-Agent"),
	}

	decision, err := h.pipeline.Validate(c.Request.Context(), req)
	if err != nil {
		var appErr *apperr.ApplicationError
		if errors.As(err, &appErr) {
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Code})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, decision)
}
