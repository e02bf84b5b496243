package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remindly-app/remindly-api/internal/service"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
	"github.com/remindly-app/remindly-api/pkg/response"
)

// RescheduleHandler exposes the reschedule request workflow.
type RescheduleHandler struct {
	service *service.RescheduleService
}

// NewRescheduleHandler creates a new handler.
func NewRescheduleHandler(svc *service.RescheduleService) *RescheduleHandler {
	return &RescheduleHandler{service: svc}
}

// Submit godoc
// @Summary Submit reschedule request
// @Description Ask for a locked admin reminder to be moved to a new slot
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param payload body service.SubmitRescheduleRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedule-requests [post]
func (h *RescheduleHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}

	request, err := h.service.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// ListMine godoc
// @Summary List own reschedule requests
// @Description List the current user's reschedule requests, newest first
// @Tags Reschedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /reschedule-requests/mine [get]
func (h *RescheduleHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	requests, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, nil)
}

// ListAll godoc
// @Summary List all reschedule requests
// @Description List every reschedule request, pending first. Admin only.
// @Tags Reschedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reschedule-requests [get]
func (h *RescheduleHandler) ListAll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	requests, err := h.service.ListAll(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, requests, nil)
}

// Review godoc
// @Summary Review reschedule request
// @Description Approve or reject a pending request; approval moves the reminder to the proposed slot
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ReviewRescheduleRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedule-requests/{id}/review [patch]
func (h *RescheduleHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReviewRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	request, err := h.service.Review(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, request, nil)
}
