package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/middleware"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/dcict/exam-backend/internal/validator"
	ws "github.com/dcict/exam-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const submitTimeout = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler streams a live exam session over a WebSocket.
type WSHandler struct {
	examService   *service.ExamService
	dashboardPath string
	log           zerolog.Logger
	upgrader      websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(examService *service.ExamService, dashboardPath string, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService:   examService,
		dashboardPath: dashboardPath,
		log:           log.With().Str("component", "ws_handler").Logger(),
		upgrader:      buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exam/stream?token=...
// Attaches the connection to the student's live session: answers, browser signals and
// submit go in; ticks, warnings and the final result come out. Disconnecting does not
// end the session; the countdown keeps running and auto-submits on expiry.
func (h *WSHandler) ExamStream(c *gin.Context) {
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

	identity := claims.Identity()
	wsLog := h.log.With().Int("student_id", identity.ID).Logger()

	entry, err := h.examService.Enter(c.Request.Context(), identity)
	if err != nil {
		wsLog.Error().Err(err).Msg("Exam entry failed")
		_ = ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
		return
	}
	if a := entry.Admission; !a.Allowed {
		if a.Blocked != nil {
			_ = ws.WriteTyped(conn, ws.StateResponse{
				Event:   ws.EventState,
				State:   model.StateBlocked,
				Message: response.GetMessage(response.ErrExamBlocked),
			})
			return
		}
		_ = ws.WriteTyped(conn, ws.RedirectResponse{Event: ws.EventRedirect, To: a.Redirect, Reason: string(a.Reason)})
		return
	}

	session := entry.Session
	client := ws.NewClient(conn, wsLog)
	go client.WritePump()
	defer client.Close()

	detach := session.Attach(h.emitter(client))
	defer detach()

	wsLog.Info().Msg("Student connected")

	ws.PrepareRead(conn)
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

		switch msg.Action {
		case ws.ActionHello:
			if msg.Viewport != nil {
				session.SetViewport(msg.Viewport.Width, msg.Viewport.Height)
			}
		case ws.ActionAnswer:
			h.handleAnswer(client, session, &msg)
		case ws.ActionSignal:
			h.handleSignal(client, session, msg.Signal)
		case ws.ActionSubmit:
			h.handleSubmit(c.Request.Context(), client, session, wsLog)
		case ws.ActionPing:
			client.Send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			client.Send(errorEvent(response.ErrInvalidPayload, "unknown action: "+string(msg.Action)))
		}

		select {
		case <-client.Done():
			return
		default:
		}
	}
}

func (h *WSHandler) handleAnswer(client *ws.Client, session *exam.Session, msg *ws.Request) {
	req := ws.AnswerRequest{QID: msg.QID, Answer: model.Option(strings.ToUpper(strings.TrimSpace(msg.Answer)))}
	if fields := validator.Struct(req); fields != nil {
		client.Send(errorEvent(response.ErrValidation, joinFields(fields)))
		return
	}

	// The saved event is emitted by the session itself.
	_, err := session.Answer(req.QID, req.Answer)
	switch {
	case err == nil:
	case errors.Is(err, exam.ErrUnknownQuestion), errors.Is(err, exam.ErrInvalidOption):
		client.Send(errorEvent(response.ErrValidation, err.Error()))
	case errors.Is(err, exam.ErrAlreadySubmitted):
		client.Send(errorEvent(response.ErrAlreadySubmitted, ""))
	case errors.Is(err, exam.ErrSessionBusy):
		client.Send(errorEvent(response.ErrConflict, err.Error()))
	default:
		client.Send(errorEvent(response.ErrNoActiveExamSession, ""))
	}
}

func (h *WSHandler) handleSignal(client *ws.Client, session *exam.Session, p *ws.SignalPayload) {
	if p == nil {
		client.Send(errorEvent(response.ErrInvalidPayload, "signal payload required"))
		return
	}
	sig := exam.Signal{
		Kind:     exam.SignalKind(p.Kind),
		ClientX:  p.ClientX,
		ClientY:  p.ClientY,
		Width:    p.Width,
		Height:   p.Height,
		Hidden:   p.Hidden,
		Key:      p.Key,
		Code:     p.Code,
		CtrlKey:  p.CtrlKey,
		ShiftKey: p.ShiftKey,
		MetaKey:  p.MetaKey,
		AltKey:   p.AltKey,
		At:       time.Now(),
	}
	sig.PreventDefault = func() {
		client.Send(ws.SuppressResponse{Event: ws.EventSuppress, Kind: suppressedKind(sig)})
	}
	session.Signal(sig)
}

func suppressedKind(sig exam.Signal) model.ViolationKind {
	if sig.Kind == exam.SignalContextMenu {
		return model.ViolationRightClick
	}
	return model.ViolationDevToolsKeyAttempt
}

func (h *WSHandler) handleSubmit(parent context.Context, client *ws.Client, session *exam.Session, wsLog zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), submitTimeout)
	defer cancel()

	// Success is announced by the session's submitted event.
	_, err := session.Submit(ctx)
	switch {
	case err == nil:
	case errors.Is(err, exam.ErrIncomplete):
		client.Send(errorEvent(response.ErrIncompleteAnswers, ""))
	case errors.Is(err, exam.ErrCommitFailed):
		wsLog.Warn().Err(err).Msg("Manual submit failed")
		client.Send(ws.SubmitFailedResponse{
			Event:     ws.EventSubmitFailed,
			Retryable: true,
			Error:     response.GetMessage(response.ErrSubmitRetry),
		})
	case errors.Is(err, exam.ErrSessionClosed):
		client.Send(errorEvent(response.ErrNoActiveExamSession, ""))
	default:
		// Timeout-trigger retries report through the session's submit_failed event.
		wsLog.Error().Err(err).Msg("Submit failed")
	}
}

// emitter maps session events onto the wire protocol.
func (h *WSHandler) emitter(client *ws.Client) func(exam.Event) {
	return func(ev exam.Event) {
		switch ev.Type {
		case exam.EventState:
			client.Send(ws.StateResponse{
				Event:            ws.EventState,
				State:            ev.State,
				RemainingSeconds: ev.Remaining,
				RemainingLabel:   exam.FormatClock(ev.Remaining),
			})
		case exam.EventTick:
			client.Send(ws.TickResponse{
				Event:            ws.EventTick,
				RemainingSeconds: ev.Remaining,
				RemainingLabel:   exam.FormatClock(ev.Remaining),
			})
		case exam.EventTimeLow:
			client.Send(ws.TimeLowResponse{
				Event:            ws.EventTimeLow,
				RemainingSeconds: ev.Remaining,
				Message:          "Less than " + exam.FormatClock(ev.Remaining) + " remaining. Your exam will be submitted automatically when time runs out.",
			})
		case exam.EventViolationWarning:
			client.Send(violationEvent(ws.EventViolationWarning, ev.Violation,
				"Suspicious activity was detected and recorded. Further activity will be reported to your teacher."))
		case exam.EventViolation:
			client.Send(violationEvent(ws.EventViolation, ev.Violation, ""))
		case exam.EventSaved:
			if ev.Completion != nil {
				client.Send(ws.SavedResponse{Event: ws.EventSaved, Answered: ev.Completion.Answered, Total: ev.Completion.Total})
			}
		case exam.EventSubmitted:
			resp := ws.SubmittedResponse{Event: ws.EventSubmitted, Auto: ev.Auto, Redirect: h.dashboardPath}
			if ev.Submission != nil {
				resp.SubmittedAt = ev.Submission.SubmittedAt
			}
			client.Finish(resp)
		case exam.EventSubmitFailed:
			msg := response.GetMessage(response.ErrSubmitRetry)
			client.Send(ws.SubmitFailedResponse{Event: ws.EventSubmitFailed, Auto: ev.Auto, Retryable: ev.Retryable, Error: msg})
		}
	}
}

func violationEvent(event ws.Event, rec *model.ViolationRecord, message string) ws.ViolationResponse {
	resp := ws.ViolationResponse{Event: event, Message: message}
	if rec != nil {
		resp.Kind = rec.Kind
		resp.Label = rec.Kind.Label()
		resp.OccurredAt = rec.OccurredAt
	}
	return resp
}

func errorEvent(code response.ErrCode, detail string) ws.ErrorResponse {
	msg := response.GetMessage(code)
	if detail != "" {
		msg = detail
	}
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: msg}
}

func joinFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for _, msg := range fields {
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
