package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// AdminSessionHandler handles proctor inspection and overrides.
type AdminSessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewAdminSessionHandler creates a new AdminSessionHandler.
func NewAdminSessionHandler(sessionService *service.ExamSessionService) *AdminSessionHandler {
	return &AdminSessionHandler{sessionService: sessionService}
}

// ListSessions godoc
// GET /api/v1/admin/sessions
func (h *AdminSessionHandler) ListSessions(c *gin.Context) {
	response.Success(c, http.StatusOK, h.sessionService.List())
}

// InspectSession godoc
// GET /api/v1/admin/sessions/:student_id
func (h *AdminSessionHandler) InspectSession(c *gin.Context) {
	insp, err := h.sessionService.Inspect(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		failSession(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, insp)
}

// ForceAbort godoc
// POST /api/v1/admin/sessions/:student_id/abort
// Discards the student's attempt without grading.
func (h *AdminSessionHandler) ForceAbort(c *gin.Context) {
	var req model.OverrideRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	admin := middleware.GetClaims(c)
	if err := h.sessionService.ForceAbort(c.Request.Context(), admin.UserID, c.Param("student_id"), req.Reason); err != nil {
		failSession(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"aborted": true})
}

// ForceSubmit godoc
// POST /api/v1/admin/sessions/:student_id/submit
// Grades the student's attempt regardless of its state.
func (h *AdminSessionHandler) ForceSubmit(c *gin.Context) {
	admin := middleware.GetClaims(c)
	view, err := h.sessionService.ForceSubmit(c.Request.Context(), admin.UserID, c.Param("student_id"))
	if err != nil {
		failSession(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, view)
}
