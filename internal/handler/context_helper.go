package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/middleware"
	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/response"
)

// actorFromContext returns the authenticated caller, writing 401 when there is none.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

// bindJSON decodes the request body, writing 400 on malformed input.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// writeError adds the conflicting slot to overlap errors.
func writeError(c *gin.Context, err error) {
	var conflict *models.TimeSlotConflictError
	if errors.As(err, &conflict) {
		response.ErrorWithMeta(c, err, map[string]interface{}{"conflict": conflict.Conflict})
		return
	}
	response.Error(c, err)
}
