package exam

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dcict/exam-backend/internal/model"
)

// ResizeThreshold is the per-axis change in pixels that marks a resize as suspicious.
// Ordinary window adjustments above it are recorded too; reviewers treat the kind as a hint.
const ResizeThreshold = 100.0

// Monitor classifies browser signals into an append-only violation log.
// It only observes: nothing it does blocks answering.
type Monitor struct {
	mu       sync.Mutex
	log      []model.ViolationRecord
	warned   bool
	active   bool
	unsubs   []func()
	width    float64
	height   float64
	haveSize bool

	now         func() time.Time
	onFirst     func(model.ViolationRecord)
	onViolation func(model.ViolationRecord)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorClock overrides the time stamped on signals that carry none.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// OnFirstViolation is called once, for the first violation of the session.
func OnFirstViolation(fn func(model.ViolationRecord)) MonitorOption {
	return func(m *Monitor) { m.onFirst = fn }
}

// OnViolation is called for every recorded violation, after it is appended.
func OnViolation(fn func(model.ViolationRecord)) MonitorOption {
	return func(m *Monitor) { m.onViolation = fn }
}

// WithViewport seeds the resize baseline with the viewport seen at session start.
func WithViewport(width, height float64) MonitorOption {
	return func(m *Monitor) {
		if width > 0 && height > 0 {
			m.width, m.height, m.haveSize = width, height, true
		}
	}
}

// NewMonitor creates an idle Monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to every signal kind on src. Calling it on a started monitor does nothing.
func (m *Monitor) Start(src SignalSource) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.mu.Unlock()

	unsubs := make([]func(), 0, len(SignalKinds))
	for _, kind := range SignalKinds {
		unsubs = append(unsubs, src.Subscribe(kind, m.Observe))
	}

	m.mu.Lock()
	m.unsubs = unsubs
	m.mu.Unlock()
}

// Stop releases all subscriptions. The log is kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.active = false
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// SetViewport records the current viewport as the resize baseline.
func (m *Monitor) SetViewport(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	m.mu.Lock()
	m.width, m.height, m.haveSize = width, height, true
	m.mu.Unlock()
}

// Restore seeds the log with records from an earlier connection of the same session.
// A non-empty restore counts as already warned.
func (m *Monitor) Restore(records []model.ViolationRecord) {
	if len(records) == 0 {
		return
	}
	m.mu.Lock()
	m.log = append(m.log, records...)
	m.warned = true
	m.mu.Unlock()
}

// Observe classifies one signal and records it if it is a violation.
// Signals arriving while the monitor is stopped are ignored.
func (m *Monitor) Observe(sig Signal) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	kind, ok := m.classify(sig)
	if !ok {
		m.mu.Unlock()
		return
	}
	at := sig.At
	if at.IsZero() {
		at = m.now()
	}
	rec := model.ViolationRecord{Kind: kind, OccurredAt: at.UTC()}
	m.log = append(m.log, rec)
	first := !m.warned
	m.warned = true
	onFirst, onViolation := m.onFirst, m.onViolation
	m.mu.Unlock()

	if sig.PreventDefault != nil && suppressesDefault(kind) {
		sig.PreventDefault()
	}
	if onViolation != nil {
		onViolation(rec)
	}
	if first && onFirst != nil {
		onFirst(rec)
	}
}

// Violations returns a copy of the log in arrival order.
func (m *Monitor) Violations() []model.ViolationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ViolationRecord, len(m.log))
	copy(out, m.log)
	return out
}

// Count returns the number of recorded violations.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}

// classify must be called with m.mu held; resize updates the baseline.
func (m *Monitor) classify(sig Signal) (model.ViolationKind, bool) {
	switch sig.Kind {
	case SignalMouseLeave:
		if LeftViewport(sig) {
			return model.ViolationMouseLeft, true
		}
	case SignalVisibilityChange:
		if sig.Hidden {
			return model.ViolationTabSwitch, true
		}
	case SignalBlur:
		return model.ViolationWindowBlur, true
	case SignalContextMenu:
		return model.ViolationRightClick, true
	case SignalResize:
		if sig.Width <= 0 || sig.Height <= 0 {
			return "", false
		}
		if !m.haveSize {
			m.width, m.height, m.haveSize = sig.Width, sig.Height, true
			return "", false
		}
		dw := math.Abs(sig.Width - m.width)
		dh := math.Abs(sig.Height - m.height)
		m.width, m.height = sig.Width, sig.Height
		if dw > ResizeThreshold || dh > ResizeThreshold {
			return model.ViolationResizeSuspected, true
		}
	case SignalKeyDown:
		if IsDevToolsShortcut(sig) {
			return model.ViolationDevToolsKeyAttempt, true
		}
	}
	return "", false
}

func suppressesDefault(kind model.ViolationKind) bool {
	return kind == model.ViolationRightClick || kind == model.ViolationDevToolsKeyAttempt
}

// LeftViewport reports whether a mouseleave happened at or beyond the viewport edge.
// Leaving toward an inner element does not count.
func LeftViewport(sig Signal) bool {
	return sig.ClientY <= 0 ||
		sig.ClientX <= 0 ||
		(sig.Width > 0 && sig.ClientX >= sig.Width) ||
		(sig.Height > 0 && sig.ClientY >= sig.Height)
}

// IsDevToolsShortcut matches F12, Ctrl+Shift+I/J/C, Ctrl+U and the Cmd+Option equivalents.
func IsDevToolsShortcut(sig Signal) bool {
	if strings.EqualFold(sig.Key, "F12") || sig.Code == "F12" {
		return true
	}
	letter := keyLetter(sig)
	switch {
	case sig.CtrlKey && sig.ShiftKey:
		return letter == "i" || letter == "j" || letter == "c"
	case sig.MetaKey && sig.AltKey:
		return letter == "i" || letter == "j" || letter == "c" || letter == "u"
	case sig.CtrlKey:
		return letter == "u"
	}
	return false
}

// keyLetter prefers the physical key code, since Option on macOS rewrites Key.
func keyLetter(sig Signal) string {
	if strings.HasPrefix(sig.Code, "Key") && len(sig.Code) == 4 {
		return strings.ToLower(sig.Code[3:])
	}
	return strings.ToLower(sig.Key)
}
