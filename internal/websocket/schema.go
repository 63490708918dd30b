package websocket

import (
	"time"

	"github.com/dcict/exam-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHello  Action = "hello"
	ActionAnswer Action = "answer"
	ActionSignal Action = "signal"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is every client message. Only the fields of its action are set.
type Request struct {
	Action   Action         `json:"action"`
	QID      int            `json:"q_id,omitempty"`
	Answer   string         `json:"ans,omitempty"`
	Viewport *Viewport      `json:"viewport,omitempty"`
	Signal   *SignalPayload `json:"signal,omitempty"`
}

// Viewport is the browser's inner size, sent on hello.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnswerRequest is the validated form of an answer action.
type AnswerRequest struct {
	QID    int          `json:"q_id" validate:"required,gt=0"`
	Answer model.Option `json:"ans" validate:"required,option_letter"`
}

// SignalPayload mirrors the DOM event the browser observed.
type SignalPayload struct {
	Kind     string  `json:"kind"`
	ClientX  float64 `json:"client_x"`
	ClientY  float64 `json:"client_y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Hidden   bool    `json:"hidden"`
	Key      string  `json:"key"`
	Code     string  `json:"code"`
	CtrlKey  bool    `json:"ctrl"`
	ShiftKey bool    `json:"shift"`
	MetaKey  bool    `json:"meta"`
	AltKey   bool    `json:"alt"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState            Event = "state"
	EventTick             Event = "tick"
	EventTimeLow          Event = "time_low"
	EventViolationWarning Event = "violation_warning"
	EventViolation        Event = "violation"
	EventSuppress         Event = "suppress"
	EventSaved            Event = "saved"
	EventSubmitted        Event = "submitted"
	EventSubmitFailed     Event = "submit_failed"
	EventRedirect         Event = "redirect"
	EventError            Event = "error"
	EventPong             Event = "pong"
)

type StateResponse struct {
	Event            Event              `json:"event"`
	State            model.SessionState `json:"state"`
	RemainingSeconds int64              `json:"remaining_seconds"`
	RemainingLabel   string             `json:"remaining_label"`
	Message          string             `json:"message,omitempty"`
}

type TickResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	RemainingLabel   string `json:"remaining_label"`
}

type TimeLowResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Message          string `json:"message"`
}

type ViolationResponse struct {
	Event      Event               `json:"event"`
	Kind       model.ViolationKind `json:"kind"`
	Label      string              `json:"label"`
	OccurredAt time.Time           `json:"occurred_at"`
	Message    string              `json:"message,omitempty"`
}

// SuppressResponse tells the client to cancel the default action of the reported event.
type SuppressResponse struct {
	Event Event               `json:"event"`
	Kind  model.ViolationKind `json:"kind"`
}

type SavedResponse struct {
	Event    Event `json:"event"`
	Answered int   `json:"answered"`
	Total    int   `json:"total"`
}

type SubmittedResponse struct {
	Event       Event     `json:"event"`
	Auto        bool      `json:"auto"`
	SubmittedAt time.Time `json:"submitted_at"`
	Redirect    string    `json:"redirect"`
}

type SubmitFailedResponse struct {
	Event     Event  `json:"event"`
	Auto      bool   `json:"auto"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

type RedirectResponse struct {
	Event  Event  `json:"event"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
