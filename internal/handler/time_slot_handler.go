package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/response"
)

type timeSlotManager interface {
	List(ctx context.Context, classID string) ([]models.TimeSlot, error)
	Create(ctx context.Context, classID string, req dto.TimeSlotRequest, actor models.Actor) (*models.TimeSlot, error)
	Update(ctx context.Context, id string, req dto.TimeSlotRequest, actor models.Actor) (*dto.TimeSlotMutationResponse, error)
	Delete(ctx context.Context, id string, actor models.Actor) (int, error)
}

type slotMaterializer interface {
	GenerateForSlot(ctx context.Context, slotID string, req dto.GenerateSessionsRequest, actor models.Actor) (*dto.GenerateSessionsResponse, error)
	CancelFutureForSlot(ctx context.Context, slotID string, req dto.CancelSessionsRequest, actor models.Actor) (int, error)
}

type weekCanceller interface {
	List(ctx context.Context, slotID string) ([]models.WeekCancellation, error)
	CancelForWeek(ctx context.Context, slotID string, req dto.CancelWeekRequest, actor models.Actor) (*dto.CancelWeekResponse, error)
	ReinstateForWeek(ctx context.Context, slotID, weekStart string, actor models.Actor) (*dto.ReinstateWeekResponse, error)
}

// TimeSlotHandler exposes weekly slot endpoints.
type TimeSlotHandler struct {
	slots        timeSlotManager
	materializer slotMaterializer
	weeks        weekCanceller
}

// NewTimeSlotHandler constructs the handler.
func NewTimeSlotHandler(slots timeSlotManager, materializer slotMaterializer, weeks weekCanceller) *TimeSlotHandler {
	return &TimeSlotHandler{slots: slots, materializer: materializer, weeks: weeks}
}

// List godoc
// @Summary List active time slots of a class
// @Tags TimeSlots
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/time-slots [get]
func (h *TimeSlotHandler) List(c *gin.Context) {
	slots, err := h.slots.List(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Create godoc
// @Summary Create a weekly time slot
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{classId}/time-slots [post]
func (h *TimeSlotHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.TimeSlotRequest
	if !bindJSON(c, &req, "invalid time slot payload") {
		return
	}
	slot, err := h.slots.Create(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Reshape a time slot
// @Description Changing the day, time or subject cancels the future sessions of the previous shape.
// @Tags TimeSlots
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.TimeSlotRequest true "Time slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-slots/{id} [put]
func (h *TimeSlotHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.TimeSlotRequest
	if !bindJSON(c, &req, "invalid time slot payload") {
		return
	}
	result, err := h.slots.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Remove a time slot and cancel its future sessions
// @Tags TimeSlots
// @Produce json
// @Param id path string true "Time slot ID"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id} [delete]
func (h *TimeSlotHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	cancelled, err := h.slots.Delete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelledSessions": cancelled}, nil)
}

// Generate godoc
// @Summary Materialize sessions for one slot
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.GenerateSessionsRequest false "Generation horizon"
// @Success 201 {object} response.Envelope
// @Router /time-slots/{id}/sessions/generate [post]
func (h *TimeSlotHandler) Generate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateSessionsRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	result, err := h.materializer.GenerateForSlot(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CancelSessions godoc
// @Summary Cancel every future session of a slot
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.CancelSessionsRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id}/sessions/cancel [post]
func (h *TimeSlotHandler) CancelSessions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelSessionsRequest
	if !bindJSON(c, &req, "invalid cancellation payload") {
		return
	}
	cancelled, err := h.materializer.CancelFutureForSlot(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cancelledSessions": cancelled}, nil)
}

// ListCancellations godoc
// @Summary List cancelled weeks of a slot
// @Tags Cancellations
// @Produce json
// @Param id path string true "Time slot ID"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id}/cancellations [get]
func (h *TimeSlotHandler) ListCancellations(c *gin.Context) {
	items, err := h.weeks.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CancelWeek godoc
// @Summary Cancel one week of a slot
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path string true "Time slot ID"
// @Param payload body dto.CancelWeekRequest true "Week to cancel"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-slots/{id}/cancellations [post]
func (h *TimeSlotHandler) CancelWeek(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CancelWeekRequest
	if !bindJSON(c, &req, "invalid week cancellation payload") {
		return
	}
	result, err := h.weeks.CancelForWeek(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ReinstateWeek godoc
// @Summary Reinstate a cancelled week and regenerate its session
// @Tags Cancellations
// @Produce json
// @Param id path string true "Time slot ID"
// @Param weekStart path string true "Any date inside the week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /time-slots/{id}/cancellations/{weekStart} [delete]
func (h *TimeSlotHandler) ReinstateWeek(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.weeks.ReinstateForWeek(c.Request.Context(), c.Param("id"), c.Param("weekStart"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
