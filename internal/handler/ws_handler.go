package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives a student's exam session over a WebSocket.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session
// The session must already be open. Every accepted action answers with the
// updated session view.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	wsLog := h.log.With().Str("student_id", studentID).Logger()

	view, err := h.sessionService.Get(c.Request.Context(), studentID)
	if err != nil {
		h.writeError(conn, err, nil)
		return
	}
	wsLog.Info().Str("exam_id", view.ExamID).Msg("Student connected")
	_ = ws.WriteSession(conn, view)

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if fields := validator.Struct(&msg); fields != nil {
			_ = ws.WriteError(conn, string(response.ErrValidation), response.GetMessage(response.ErrValidation), nil)
			continue
		}

		if msg.Action == ws.ActionPing {
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			continue
		}

		view, err := h.dispatch(context.Background(), studentID, &msg)
		if err != nil {
			if errors.Is(err, errUnknownAction) {
				wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			}
			h.writeError(conn, err, &view)
			continue
		}
		_ = ws.WriteSession(conn, view)
	}
}

var errUnknownAction = errors.New("unknown action")

func (h *WSHandler) dispatch(ctx context.Context, studentID string, msg *ws.Request) (session.View, error) {
	switch msg.Action {
	case ws.ActionState:
		return h.sessionService.Get(ctx, studentID)
	case ws.ActionBegin:
		return h.sessionService.Begin(ctx, studentID)
	case ws.ActionNavigate:
		return h.sessionService.Navigate(ctx, studentID, msg.Section, msg.Item)
	case ws.ActionInstructions:
		return h.sessionService.ShowInstructions(ctx, studentID)
	case ws.ActionAnswer:
		return h.sessionService.RecordAnswer(ctx, studentID, msg.Section, msg.Item, msg.Answer)
	case ws.ActionSubmit:
		return h.sessionService.RequestSubmit(ctx, studentID)
	case ws.ActionConfirm:
		return h.sessionService.ConfirmSubmit(ctx, studentID, msg.Confirm)
	default:
		return session.View{}, errUnknownAction
	}
}

func (h *WSHandler) writeError(conn *websocket.Conn, err error, view *session.View) {
	if errors.Is(err, errUnknownAction) {
		_ = ws.WriteError(conn, string(response.ErrInvalidPayload), err.Error(), nil)
		return
	}

	_, code, visible := sessionError(err)
	message := response.GetMessage(code)
	if visible {
		message = err.Error()
	}
	if code == response.ErrInternal {
		h.log.Error().Err(err).Msg("Session action failed")
	}

	var data interface{}
	if view != nil && view.StudentID != "" {
		data = view
	}
	_ = ws.WriteError(conn, string(code), message, data)
}
