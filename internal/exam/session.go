package exam

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionClosed rejects actions on a session that was torn down.
	ErrSessionClosed = errors.New("exam session is closed")
	// ErrSessionBusy rejects answers while a submission is in flight.
	ErrSessionBusy = errors.New("exam session is being submitted")
	// ErrAlreadySubmitted rejects answers after the session is done.
	ErrAlreadySubmitted = errors.New("exam already submitted")
)

// EventType names a server-to-client session event.
type EventType string

const (
	EventState            EventType = "state"
	EventTick             EventType = "tick"
	EventTimeLow          EventType = "time_low"
	EventViolationWarning EventType = "violation_warning"
	EventViolation        EventType = "violation"
	EventSaved            EventType = "saved"
	EventSubmitted        EventType = "submitted"
	EventSubmitFailed     EventType = "submit_failed"
)

// Event is emitted to whoever is attached to the session.
type Event struct {
	Type       EventType
	State      model.SessionState
	Remaining  int64
	Violation  *model.ViolationRecord
	Completion *Completion
	Submission *model.Submission
	Auto       bool
	Retryable  bool
	Err        error
}

// Journal mirrors session progress outside the process. Implementations handle
// their own errors; a journal failure never affects the session.
type Journal interface {
	AnswerSaved(ctx context.Context, id model.Identity, questionID int, opt model.Option)
	ViolationRecorded(ctx context.Context, id model.Identity, rec model.ViolationRecord)
	Finalized(ctx context.Context, id model.Identity, sub *model.Submission)
}

// SessionConfig holds everything a Session is built from.
type SessionConfig struct {
	Identity  model.Identity
	Questions []model.Question
	EndTime   time.Time
	TimeLow   time.Duration
	Finalizer *Finalizer
	Journal   Journal
	// Answers and Violations restore a draft saved by an earlier connection.
	Answers    map[int]model.Option
	Violations []model.ViolationRecord
	Viewport   [2]float64
	Log        zerolog.Logger
}

// Session is one student's in-progress exam. It composes the ledger, the integrity monitor
// and the countdown, and routes both manual submit and expiry through one finalize path.
type Session struct {
	identity  model.Identity
	questions []model.Question
	ledger    *Ledger
	monitor   *Monitor
	countdown *Countdown
	bus       *Bus
	finalizer *Finalizer
	journal   Journal
	log       zerolog.Logger
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       model.SessionState
	emit        func(Event)
	attachGen   int
	result      *model.Submission
	finalizing  bool
	retryAsAuto bool
	closed      bool

	finMu     sync.Mutex
	closeOnce sync.Once
	onClose   func(*Session)
}

// NewSession builds a session in the loading state. Call Start to begin the countdown
// and signal monitoring.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		identity:  cfg.Identity,
		questions: cfg.Questions,
		ledger:    NewLedger(cfg.Questions),
		bus:       NewBus(),
		finalizer: cfg.Finalizer,
		journal:   cfg.Journal,
		state:     model.StateLoading,
		log: cfg.Log.With().
			Str("component", "exam_session").
			Int("student_id", cfg.Identity.ID).
			Logger(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if n := s.ledger.Restore(cfg.Answers); n > 0 {
		s.log.Info().Int("answers", n).Msg("Restored draft answers")
	}

	s.monitor = NewMonitor(
		WithViewport(cfg.Viewport[0], cfg.Viewport[1]),
		OnViolation(s.violationRecorded),
		OnFirstViolation(func(rec model.ViolationRecord) {
			s.emitEvent(Event{Type: EventViolationWarning, Violation: &rec})
		}),
	)
	s.monitor.Restore(cfg.Violations)

	s.countdown = NewCountdown(cfg.EndTime,
		WithTimeLow(cfg.TimeLow),
		OnTick(func(remaining int64) {
			s.emitEvent(Event{Type: EventTick, Remaining: remaining})
		}),
		OnTimeLow(func(remaining int64) {
			s.emitEvent(Event{Type: EventTimeLow, Remaining: remaining})
		}),
		OnExpire(s.expire),
	)
	return s
}

// Start activates the session: the monitor subscribes and the countdown begins ticking.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != model.StateLoading {
		s.mu.Unlock()
		return
	}
	s.state = model.StateActive
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	s.monitor.Start(s.bus)
	s.countdown.Start(s.ctx)
	s.log.Info().Time("ends_at", s.countdown.End()).Msg("Exam session started")
}

// Attach routes events to emit until the returned detach function is called.
// A newer Attach replaces an older one.
func (s *Session) Attach(emit func(Event)) (detach func()) {
	s.mu.Lock()
	s.attachGen++
	gen := s.attachGen
	s.emit = emit
	state := s.state
	s.mu.Unlock()

	emit(Event{Type: EventState, State: state, Remaining: s.RemainingSeconds()})

	return func() {
		s.mu.Lock()
		if s.attachGen == gen {
			s.emit = nil
		}
		s.mu.Unlock()
	}
}

// ExtendDeadline moves the session's end time later. Earlier times are ignored, so a
// live session never ends before the deadline it was started with.
func (s *Session) ExtendDeadline(end time.Time) bool {
	if !s.countdown.Extend(end, time.Now()) {
		return false
	}
	s.log.Info().Time("ends_at", end).Msg("Exam deadline extended")
	s.emitEvent(Event{Type: EventState, State: s.State(), Remaining: s.RemainingSeconds()})
	return true
}

// Signal forwards a browser signal to the integrity monitor.
func (s *Session) Signal(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	s.bus.Publish(sig)
}

// SetViewport resets the resize baseline, typically on (re)connect.
func (s *Session) SetViewport(width, height float64) {
	s.monitor.SetViewport(width, height)
}

// Answer records a choice in the ledger.
func (s *Session) Answer(questionID int, opt model.Option) (Completion, error) {
	s.mu.Lock()
	err := s.acceptingLocked()
	s.mu.Unlock()
	if err != nil {
		return Completion{}, err
	}

	if err := s.ledger.SetAnswer(questionID, opt); err != nil {
		return Completion{}, err
	}
	if s.journal != nil {
		s.journal.AnswerSaved(s.ctx, s.identity, questionID, opt)
	}
	c := s.ledger.Completion()
	s.emitEvent(Event{Type: EventSaved, Completion: &c})
	return c, nil
}

func (s *Session) acceptingLocked() error {
	switch {
	case s.result != nil:
		return ErrAlreadySubmitted
	case s.closed:
		return ErrSessionClosed
	case s.finalizing:
		return ErrSessionBusy
	}
	return nil
}

// Submit finalizes on the student's request. After a failed auto-submit the retry
// keeps the timeout semantics, so an incomplete ledger is still accepted.
func (s *Session) Submit(ctx context.Context) (*model.Submission, error) {
	s.mu.Lock()
	trigger := TriggerManual
	if s.retryAsAuto {
		trigger = TriggerTimeout
	}
	s.mu.Unlock()
	return s.finalize(ctx, trigger)
}

func (s *Session) expire() {
	s.log.Info().Msg("Exam time expired, auto-submitting")
	if _, err := s.finalize(s.ctx, TriggerTimeout); err != nil {
		s.log.Error().Err(err).Msg("Auto-submit failed")
	}
}

// finalize is the single path for both triggers. finMu serializes callers; the store's
// unique key decides the race across processes.
func (s *Session) finalize(ctx context.Context, trigger Trigger) (*model.Submission, error) {
	s.finMu.Lock()
	defer s.finMu.Unlock()

	s.mu.Lock()
	if s.result != nil {
		r := s.result
		s.mu.Unlock()
		return r, nil
	}
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.finalizing = true
	s.mu.Unlock()

	sub, err := s.finalizer.Finalize(context.WithoutCancel(ctx), FinalizeInput{
		Trigger:    trigger,
		Identity:   s.identity,
		Ledger:     s.ledger,
		Violations: s.monitor.Violations(),
		Questions:  s.questions,
	})
	queued := errors.Is(err, ErrSubmissionQueued)
	if err != nil && !queued {
		s.mu.Lock()
		s.finalizing = false
		changed := false
		if !errors.Is(err, ErrIncomplete) && !errors.Is(err, ErrNotStudent) {
			changed = s.state != model.StateErrorRetry
			s.state = model.StateErrorRetry
			if trigger == TriggerTimeout {
				s.retryAsAuto = true
			}
		}
		s.mu.Unlock()
		if changed {
			s.emitEvent(Event{Type: EventState, State: model.StateErrorRetry})
		}
		if trigger == TriggerTimeout {
			s.emitEvent(Event{Type: EventSubmitFailed, Auto: true, Retryable: true, Err: err})
		}
		return nil, err
	}

	s.mu.Lock()
	s.result = sub
	s.state = model.StateDone
	s.finalizing = false
	s.mu.Unlock()

	// A queued submission is journaled by the retry worker once it is committed.
	if s.journal != nil && !queued {
		s.journal.Finalized(context.WithoutCancel(ctx), s.identity, sub)
	}
	s.emitEvent(Event{Type: EventSubmitted, Submission: sub, Auto: sub.AutoSubmitted})
	s.teardown()
	return sub, nil
}

func (s *Session) violationRecorded(rec model.ViolationRecord) {
	if s.journal != nil {
		s.journal.ViolationRecorded(s.ctx, s.identity, rec)
	}
	s.emitEvent(Event{Type: EventViolation, Violation: &rec})
}

func (s *Session) emitEvent(ev Event) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

// Close tears the session down without submitting.
func (s *Session) Close() {
	s.mu.Lock()
	if s.result == nil {
		s.closed = true
	}
	s.mu.Unlock()
	s.teardown()
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.countdown.Stop()
		s.monitor.Stop()
		s.cancel()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// ─── Accessors ──────────────────────────────────────────────────────

func (s *Session) Identity() model.Identity    { return s.identity }
func (s *Session) Questions() []model.Question { return s.questions }
func (s *Session) EndsAt() time.Time           { return s.countdown.End() }
func (s *Session) Completion() Completion      { return s.ledger.Completion() }
func (s *Session) Answers() map[int]model.Option {
	return s.ledger.Snapshot()
}
func (s *Session) Violations() []model.ViolationRecord { return s.monitor.Violations() }
func (s *Session) ViolationCount() int                 { return s.monitor.Count() }
func (s *Session) CountdownState() CountdownState      { return s.countdown.State() }

// State returns the student-visible state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the committed submission, or nil before finalization.
func (s *Session) Result() *model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// RemainingSeconds computes the whole seconds left from the wall clock.
func (s *Session) RemainingSeconds() int64 {
	if s.CountdownState() != CountdownRunning {
		return 0
	}
	return wholeSeconds(time.Until(s.countdown.End()))
}

// Overview is the monitor row for this session.
func (s *Session) Overview() model.ActiveSession {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	return model.ActiveSession{
		StudentID:      s.identity.ID,
		StudentName:    s.identity.Name,
		ConnectedAt:    started,
		Answered:       s.ledger.Completion().Answered,
		ViolationCount: s.monitor.Count(),
	}
}
