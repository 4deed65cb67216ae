package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/grading"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// sessionError maps session, grading and service errors to an HTTP status,
// an error code, and whether the error text is safe to show the student.
func sessionError(err error) (int, response.ErrCode, bool) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, response.ErrNoActiveSession, false
	case errors.Is(err, session.ErrAlreadyActive):
		return http.StatusConflict, response.ErrSessionActive, false
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, response.ErrInvalidTransition, false
	case errors.Is(err, session.ErrIndexOutOfRange):
		return http.StatusBadRequest, response.ErrIndexOutOfRange, false
	case errors.Is(err, session.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer, true
	case errors.Is(err, session.ErrTimedOut):
		return http.StatusConflict, response.ErrExamTimedOut, false
	case errors.Is(err, session.ErrSessionFailed):
		return http.StatusUnprocessableEntity, response.ErrSessionFailed, true
	case errors.Is(err, grading.ErrDuplicateSubmission):
		return http.StatusConflict, response.ErrDuplicateSubmission, false
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusBadRequest, response.ErrInvalidCleanupCode, false
	default:
		return http.StatusInternalServerError, response.ErrInternal, false
	}
}

// failSession writes err with the session view when one is available.
func failSession(c *gin.Context, err error, view *session.View) {
	status, code, visible := sessionError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}

	message := ""
	if visible {
		message = err.Error()
	}

	var data interface{}
	if view != nil && view.StudentID != "" {
		data = view
	}
	response.FailWithData(c, status, code, message, data)
}
