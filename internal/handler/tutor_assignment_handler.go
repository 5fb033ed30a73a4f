package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/pkg/response"
)

type tutorAssignmentManager interface {
	List(ctx context.Context, classID string) ([]models.TutorAssignment, error)
	Create(ctx context.Context, classID string, req dto.CreateTutorAssignmentRequest, actor models.Actor) (*models.TutorAssignment, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateAssignmentStatusRequest, actor models.Actor) (*dto.AssignmentStatusResponse, error)
	Remove(ctx context.Context, id string, actor models.Actor) error
}

// TutorAssignmentHandler exposes tutor rotation membership endpoints.
type TutorAssignmentHandler struct {
	service tutorAssignmentManager
}

// NewTutorAssignmentHandler constructs the handler.
func NewTutorAssignmentHandler(svc tutorAssignmentManager) *TutorAssignmentHandler {
	return &TutorAssignmentHandler{service: svc}
}

// List godoc
// @Summary List tutor assignments of a class
// @Tags TutorAssignments
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/tutor-assignments [get]
func (h *TutorAssignmentHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Assign a tutor to a class subject rotation
// @Tags TutorAssignments
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.CreateTutorAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{classId}/tutor-assignments [post]
func (h *TutorAssignmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateTutorAssignmentRequest
	if !bindJSON(c, &req, "invalid tutor assignment payload") {
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateStatus godoc
// @Summary Accept or decline a tutor assignment
// @Tags TutorAssignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.UpdateAssignmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /tutor-assignments/{id}/status [patch]
func (h *TutorAssignmentHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateAssignmentStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	result, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Remove godoc
// @Summary Remove a tutor from rotation
// @Tags TutorAssignments
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /tutor-assignments/{id} [delete]
func (h *TutorAssignmentHandler) Remove(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
