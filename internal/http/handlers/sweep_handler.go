// Stale-conversation sweep handler.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careassist/handoff-backend/internal/services"
)

// SweepRequest optionally narrows a sweep to a single property and tunes the
// staleness threshold. Both fields may be omitted.
type SweepRequest struct {
	PropertyID   string `json:"propertyId,omitempty"   example:"b0a8f1c2-7c6d-4e1a-9b0f-2d3e4f5a6b7c"`
	StaleSeconds int    `json:"staleSeconds,omitempty" example:"45"`
}

// SweepResponse reports how many conversations the sweep closed and over
// which properties it ran.
type SweepResponse struct {
	OK           bool     `json:"ok"`
	ClosedCount  int64    `json:"closedCount"`
	StaleSeconds int      `json:"staleSeconds"`
	PropertyIDs  []string `json:"propertyIds"`
}

// SweepConversations godoc
// @ID          sweepConversations
// @Summary     Close stale conversations
// @Description Closes active conversations whose last activity predates the staleness threshold, scoped to the caller's owned and assigned properties.
// @Tags        Sweep
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Authorization  header  string                  true   "Bearer token"
// @Param       body           body    handlers.SweepRequest   false  "Optional scope and threshold"
//
// @Success     200  {object}  handlers.SweepResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "Property outside caller scope"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/sweep [post]
func (h *Handlers) SweepConversations(c *gin.Context) {
	var req SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed sweep payload")
			return
		}
	}

	res, err := h.sweepSvc.Sweep(c.Request.Context(), userID(c), req.PropertyID, req.StaleSeconds)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbiddenScope):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, "sweep failed")
		}
		return
	}

	ok(c, http.StatusOK, SweepResponse{
		OK:           true,
		ClosedCount:  res.ClosedCount,
		StaleSeconds: res.StaleSeconds,
		PropertyIDs:  res.PropertyIDs,
	})
}
