package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/dto"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	"github.com/noah-isme/session-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/response"
)

type classMaterializer interface {
	GenerateForClass(ctx context.Context, classID string, req dto.GenerateSessionsRequest, actor models.Actor) (*dto.GenerateSessionsResponse, error)
	FillGaps(ctx context.Context, classID string, req dto.FillGapsRequest, actor models.Actor) (*dto.FillGapsResponse, error)
}

type sessionReader interface {
	List(ctx context.Context, classID string, query dto.SessionListQuery) ([]models.Session, error)
}

type sessionExporter interface {
	Export(ctx context.Context, classID string, query dto.SessionListQuery) (*service.ExportResult, error)
}

type rotationReapplier interface {
	Reapply(ctx context.Context, classID string, req dto.ApplyRotationRequest, actor models.Actor) (*dto.ApplyRotationResponse, error)
}

// SessionHandler exposes class-level session endpoints.
type SessionHandler struct {
	materializer classMaterializer
	sessions     sessionReader
	exports      sessionExporter
	rotation     rotationReapplier
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(materializer classMaterializer, sessions sessionReader, exports sessionExporter, rotation rotationReapplier) *SessionHandler {
	return &SessionHandler{materializer: materializer, sessions: sessions, exports: exports, rotation: rotation}
}

// Generate godoc
// @Summary Materialize sessions for every active slot of a class
// @Tags Sessions
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.GenerateSessionsRequest false "Generation horizon"
// @Success 201 {object} response.Envelope
// @Router /classes/{classId}/sessions/generate [post]
func (h *SessionHandler) Generate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.GenerateSessionsRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	result, err := h.materializer.GenerateForClass(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// FillGaps godoc
// @Summary Generate sessions for weeks of a range that have none
// @Tags Sessions
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.FillGapsRequest true "Date range"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/sessions/fill-gaps [post]
func (h *SessionHandler) FillGaps(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.FillGapsRequest
	if !bindJSON(c, &req, "invalid fill-gaps payload") {
		return
	}
	result, err := h.materializer.FillGaps(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List sessions of a class
// @Tags Sessions
// @Produce json
// @Param classId path string true "Class ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date, inclusive (YYYY-MM-DD)"
// @Param subject query string false "Subject"
// @Param status query []string false "Statuses" collectionFormat(multi)
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session query"))
		return
	}
	sessions, err := h.sessions.List(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil, map[string]interface{}{"count": len(sessions)})
}

// Export godoc
// @Summary Export the session calendar of a class
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date, inclusive (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /classes/{classId}/sessions/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

// ApplyRotation godoc
// @Summary Re-resolve tutors for unassigned pending sessions
// @Tags Rotation
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.ApplyRotationRequest false "Date range"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/rotation/apply [post]
func (h *SessionHandler) ApplyRotation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ApplyRotationRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid rotation payload") {
		return
	}
	result, err := h.rotation.Reapply(c.Request.Context(), c.Param("classId"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
