package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remindly-app/remindly-api/internal/models"
	"github.com/remindly-app/remindly-api/internal/service"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
	"github.com/remindly-app/remindly-api/pkg/response"
)

// ReminderHandler exposes reminder CRUD, completion toggling and schedule
// export.
type ReminderHandler struct {
	service *service.ReminderService
	exports *service.ExportService
}

// NewReminderHandler creates a new handler. The export service may be nil
// when exports are disabled.
func NewReminderHandler(svc *service.ReminderService, exports *service.ExportService) *ReminderHandler {
	return &ReminderHandler{service: svc, exports: exports}
}

func reminderFilterFromQuery(c *gin.Context) models.ReminderFilter {
	filter := models.ReminderFilter{
		Date:     c.Query("date"),
		Category: c.Query("category"),
	}
	if status := c.Query("status"); status != "" {
		s := models.ReminderStatus(status)
		filter.Status = &s
	}
	if priority := c.Query("priority"); priority != "" {
		p := models.ReminderPriority(priority)
		filter.Priority = &p
	}
	return filter
}

// List godoc
// @Summary List reminders
// @Description List reminders visible to the current user
// @Tags Reminders
// @Produce json
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param status query string false "Filter by status"
// @Param priority query string false "Filter by priority"
// @Param category query string false "Filter by category"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /reminders [get]
func (h *ReminderHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reminders, err := h.service.List(c.Request.Context(), actor, reminderFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, reminders, nil)
}

// Get godoc
// @Summary Get reminder
// @Description Fetch a single reminder by ID
// @Tags Reminders
// @Produce json
// @Param id path string true "Reminder ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reminders/{id} [get]
func (h *ReminderHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reminder, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, reminder, nil)
}

// Create godoc
// @Summary Create reminder
// @Description Admins create locked assigned tasks; students create personal reminders checked against assigned tasks for overlap
// @Tags Reminders
// @Accept json
// @Produce json
// @Param payload body service.CreateReminderRequest true "Reminder payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reminders [post]
func (h *ReminderHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reminder payload"))
		return
	}

	var (
		reminder *models.Reminder
		err      error
	)
	if actor.Role == models.RoleAdmin {
		reminder, err = h.service.CreateAsAdmin(c.Request.Context(), actor, req)
	} else {
		reminder, err = h.service.CreateAsStudent(c.Request.Context(), actor, req)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, reminder)
}

// Update godoc
// @Summary Update reminder
// @Description Apply a partial update to a reminder
// @Tags Reminders
// @Accept json
// @Produce json
// @Param id path string true "Reminder ID"
// @Param payload body service.UpdateReminderRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reminders/{id} [put]
func (h *ReminderHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patch payload"))
		return
	}

	reminder, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, reminder, nil)
}

// Delete godoc
// @Summary Delete reminder
// @Description Remove a reminder
// @Tags Reminders
// @Produce json
// @Param id path string true "Reminder ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reminders/{id} [delete]
func (h *ReminderHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Toggle godoc
// @Summary Toggle reminder completion
// @Description Flip a reminder between pending and completed
// @Tags Reminders
// @Produce json
// @Param id path string true "Reminder ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reminders/{id}/toggle [patch]
func (h *ReminderHandler) Toggle(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reminder, err := h.service.ToggleComplete(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, reminder, nil)
}

// Export godoc
// @Summary Export schedule
// @Description Download the visible schedule as CSV or PDF
// @Tags Reminders
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reminders/export [get]
func (h *ReminderHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Generate(c.Request.Context(), actor, format, reminderFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
