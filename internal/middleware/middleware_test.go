package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	stub := validatorStub{claims: &models.JWTClaims{UserID: "owner-1", Role: models.RoleOwner}}
	router.GET("/protected", JWT(stub), RequireRoles(roles...), func(c *gin.Context) {
		actor, _ := Actor(c)
		c.String(http.StatusOK, actor.UserID)
	})
	return router
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	router := newProtectedRouter(models.RoleOwner)

	for _, header := range []string{"", "Basic abc", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTStoresActor(t *testing.T) {
	router := newProtectedRouter(models.RoleOwner, models.RoleAdmin)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner-1", w.Body.String())
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
