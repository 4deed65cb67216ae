package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler handles the student-facing exam session API.
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
// Opens the exam, or resumes the student's live session.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.StartSessionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	started, err := h.sessionService.CreateOrResume(c.Request.Context(), claims.UserID, c.Param("exam_id"), req.TemplateRef)
	if err != nil {
		var view *session.View
		if started != nil {
			view = &started.Session
		}
		failSession(c, err, view)
		return
	}

	status := http.StatusCreated
	if started.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, started)
}

// GetSession godoc
// GET /api/v1/student/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.sessionService.Get(c.Request.Context(), middleware.GetClaims(c).UserID)
	h.reply(c, view, err)
}

// Begin godoc
// POST /api/v1/student/session/begin
func (h *SessionHandler) Begin(c *gin.Context) {
	view, err := h.sessionService.Begin(c.Request.Context(), middleware.GetClaims(c).UserID)
	h.reply(c, view, err)
}

// Navigate godoc
// POST /api/v1/student/session/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	view, err := h.sessionService.Navigate(c.Request.Context(), middleware.GetClaims(c).UserID, req.Section, req.Item)
	h.reply(c, view, err)
}

// ShowInstructions godoc
// POST /api/v1/student/session/instructions
func (h *SessionHandler) ShowInstructions(c *gin.Context) {
	view, err := h.sessionService.ShowInstructions(c.Request.Context(), middleware.GetClaims(c).UserID)
	h.reply(c, view, err)
}

// RecordAnswer godoc
// PUT /api/v1/student/session/answer
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	view, err := h.sessionService.RecordAnswer(c.Request.Context(), middleware.GetClaims(c).UserID, req.Section, req.Item, req.Answer)
	h.reply(c, view, err)
}

// RequestSubmit godoc
// POST /api/v1/student/session/submit
func (h *SessionHandler) RequestSubmit(c *gin.Context) {
	view, err := h.sessionService.RequestSubmit(c.Request.Context(), middleware.GetClaims(c).UserID)
	h.reply(c, view, err)
}

// ConfirmSubmit godoc
// POST /api/v1/student/session/confirm
func (h *SessionHandler) ConfirmSubmit(c *gin.Context) {
	var req model.ConfirmSubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	view, err := h.sessionService.ConfirmSubmit(c.Request.Context(), middleware.GetClaims(c).UserID, *req.Confirm)
	h.reply(c, view, err)
}

// Close godoc
// POST /api/v1/student/session/close
// Ends a completed or failed session and returns the one-time cleanup code.
func (h *SessionHandler) Close(c *gin.Context) {
	closed, err := h.sessionService.Close(middleware.GetClaims(c).UserID)
	if err != nil {
		failSession(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, closed)
}

// Release godoc
// POST /api/v1/student/session/release
func (h *SessionHandler) Release(c *gin.Context) {
	var req model.ReleaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := h.sessionService.Release(middleware.GetClaims(c).UserID, req.Code); err != nil {
		failSession(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"released": true})
}

// ListResults godoc
// GET /api/v1/student/results
func (h *SessionHandler) ListResults(c *gin.Context) {
	results, err := h.sessionService.Results(c.Request.Context(), middleware.GetClaims(c).UserID)
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, results)
}

func (h *SessionHandler) reply(c *gin.Context, view session.View, err error) {
	if err != nil {
		failSession(c, err, &view)
		return
	}
	response.Success(c, http.StatusOK, view)
}
