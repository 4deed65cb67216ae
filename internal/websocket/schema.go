package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionState        Action = "state"
	ActionBegin        Action = "begin"
	ActionNavigate     Action = "navigate"
	ActionInstructions Action = "instructions"
	ActionAnswer       Action = "answer"
	ActionSubmit       Action = "submit"
	ActionConfirm      Action = "confirm"
	ActionPing         Action = "ping"
)

// Request is one client message. Only the fields of its action are read.
type Request struct {
	Action  Action `json:"action" binding:"required"`
	Section int    `json:"section" binding:"min=0"`
	Item    int    `json:"item" binding:"min=0"`
	Answer  string `json:"ans" binding:"max=4096"`
	Confirm bool   `json:"confirm"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession Event = "session"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// SessionResponse carries the current session view.
type SessionResponse struct {
	Event   Event       `json:"event"`
	Session interface{} `json:"session"`
}

// ErrorResponse reports a rejected action, with the session view when the
// session still exists.
type ErrorResponse struct {
	Event   Event       `json:"event"`
	Code    string      `json:"code"`
	Error   string      `json:"error"`
	Session interface{} `json:"session,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
