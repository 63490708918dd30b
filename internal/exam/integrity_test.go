package exam

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dcict/exam-backend/internal/model"
)

func TestMonitorClassification(t *testing.T) {
	tests := []struct {
		name string
		sig  Signal
		want model.ViolationKind
	}{
		{"mouse out top", Signal{Kind: SignalMouseLeave, ClientX: 400, ClientY: 0, Width: 1280, Height: 800}, model.ViolationMouseLeft},
		{"mouse out left", Signal{Kind: SignalMouseLeave, ClientX: -3, ClientY: 300, Width: 1280, Height: 800}, model.ViolationMouseLeft},
		{"mouse out right", Signal{Kind: SignalMouseLeave, ClientX: 1280, ClientY: 300, Width: 1280, Height: 800}, model.ViolationMouseLeft},
		{"mouse out bottom", Signal{Kind: SignalMouseLeave, ClientX: 10, ClientY: 812, Width: 1280, Height: 800}, model.ViolationMouseLeft},
		{"mouse to inner element", Signal{Kind: SignalMouseLeave, ClientX: 600, ClientY: 400, Width: 1280, Height: 800}, ""},
		{"tab hidden", Signal{Kind: SignalVisibilityChange, Hidden: true}, model.ViolationTabSwitch},
		{"tab visible again", Signal{Kind: SignalVisibilityChange, Hidden: false}, ""},
		{"blur", Signal{Kind: SignalBlur}, model.ViolationWindowBlur},
		{"right click", Signal{Kind: SignalContextMenu}, model.ViolationRightClick},
		{"F12", Signal{Kind: SignalKeyDown, Key: "F12"}, model.ViolationDevToolsKeyAttempt},
		{"ctrl shift I", Signal{Kind: SignalKeyDown, Key: "I", CtrlKey: true, ShiftKey: true}, model.ViolationDevToolsKeyAttempt},
		{"ctrl shift j lower", Signal{Kind: SignalKeyDown, Key: "j", CtrlKey: true, ShiftKey: true}, model.ViolationDevToolsKeyAttempt},
		{"ctrl shift C", Signal{Kind: SignalKeyDown, Key: "C", CtrlKey: true, ShiftKey: true}, model.ViolationDevToolsKeyAttempt},
		{"ctrl u", Signal{Kind: SignalKeyDown, Key: "u", CtrlKey: true}, model.ViolationDevToolsKeyAttempt},
		{"cmd opt i by code", Signal{Kind: SignalKeyDown, Key: "ˆ", Code: "KeyI", MetaKey: true, AltKey: true}, model.ViolationDevToolsKeyAttempt},
		{"cmd opt u", Signal{Kind: SignalKeyDown, Key: "u", MetaKey: true, AltKey: true}, model.ViolationDevToolsKeyAttempt},
		{"cmd i alone", Signal{Kind: SignalKeyDown, Key: "i", MetaKey: true}, ""},
		{"ctrl c copy", Signal{Kind: SignalKeyDown, Key: "c", CtrlKey: true}, ""},
		{"plain letter", Signal{Kind: SignalKeyDown, Key: "a"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			m := NewMonitor()
			m.Start(bus)
			defer m.Stop()

			bus.Publish(tt.sig)

			got := m.Violations()
			if tt.want == "" {
				if len(got) != 0 {
					t.Fatalf("recorded %v, want nothing", got)
				}
				return
			}
			if len(got) != 1 || got[0].Kind != tt.want {
				t.Fatalf("recorded %v, want one %q", got, tt.want)
			}
		})
	}
}

func TestMonitorCmdOptUByCode(t *testing.T) {
	sig := Signal{Kind: SignalKeyDown, Key: "¨", Code: "KeyU", MetaKey: true, AltKey: true}
	if !IsDevToolsShortcut(sig) {
		t.Fatal("Cmd+Option+U not detected")
	}
}

func TestMonitorResizeBaseline(t *testing.T) {
	bus := NewBus()
	m := NewMonitor(WithViewport(1280, 800))
	m.Start(bus)
	defer m.Stop()

	bus.Publish(Signal{Kind: SignalResize, Width: 1250, Height: 780}) // small: baseline moves
	bus.Publish(Signal{Kind: SignalResize, Width: 1200, Height: 760}) // 50 from the new baseline
	bus.Publish(Signal{Kind: SignalResize, Width: 1200, Height: 500}) // 260 in height
	bus.Publish(Signal{Kind: SignalResize, Width: 1200, Height: 500}) // unchanged

	got := m.Violations()
	if len(got) != 1 || got[0].Kind != model.ViolationResizeSuspected {
		t.Fatalf("violations = %v, want exactly one resize_suspected", got)
	}
}

func TestMonitorResizeWithoutInitialViewport(t *testing.T) {
	bus := NewBus()
	m := NewMonitor()
	m.Start(bus)
	defer m.Stop()

	bus.Publish(Signal{Kind: SignalResize, Width: 600, Height: 400})
	if m.Count() != 0 {
		t.Fatal("first resize without a baseline should only set it")
	}
	bus.Publish(Signal{Kind: SignalResize, Width: 1200, Height: 400})
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
}

func TestMonitorFirstViolationEdge(t *testing.T) {
	var first, all atomic.Int32
	bus := NewBus()
	m := NewMonitor(
		OnFirstViolation(func(model.ViolationRecord) { first.Add(1) }),
		OnViolation(func(model.ViolationRecord) { all.Add(1) }),
	)
	m.Start(bus)
	defer m.Stop()

	seq := []Signal{
		{Kind: SignalBlur},
		{Kind: SignalVisibilityChange, Hidden: true},
		{Kind: SignalContextMenu},
		{Kind: SignalBlur},
		{Kind: SignalKeyDown, Key: "F12"},
	}
	for _, s := range seq {
		bus.Publish(s)
	}

	if first.Load() != 1 {
		t.Errorf("first-violation edge fired %d times, want 1", first.Load())
	}
	if all.Load() != int32(len(seq)) {
		t.Errorf("OnViolation fired %d times, want %d", all.Load(), len(seq))
	}

	want := []model.ViolationKind{
		model.ViolationWindowBlur,
		model.ViolationTabSwitch,
		model.ViolationRightClick,
		model.ViolationWindowBlur,
		model.ViolationDevToolsKeyAttempt,
	}
	got := m.Violations()
	if len(got) != len(want) {
		t.Fatalf("log has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i].Kind, want[i])
		}
	}
}

func TestMonitorRestoreSuppressesWarning(t *testing.T) {
	var first atomic.Int32
	bus := NewBus()
	m := NewMonitor(OnFirstViolation(func(model.ViolationRecord) { first.Add(1) }))
	m.Restore([]model.ViolationRecord{{Kind: model.ViolationWindowBlur, OccurredAt: time.Now()}})
	m.Start(bus)
	defer m.Stop()

	bus.Publish(Signal{Kind: SignalBlur})
	if first.Load() != 0 {
		t.Fatal("warning fired again after restore")
	}
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}
}

func TestMonitorPreventDefault(t *testing.T) {
	bus := NewBus()
	m := NewMonitor()
	m.Start(bus)
	defer m.Stop()

	var prevented atomic.Int32
	pd := func() { prevented.Add(1) }

	bus.Publish(Signal{Kind: SignalContextMenu, PreventDefault: pd})
	bus.Publish(Signal{Kind: SignalKeyDown, Key: "F12", PreventDefault: pd})
	bus.Publish(Signal{Kind: SignalBlur, PreventDefault: pd})
	bus.Publish(Signal{Kind: SignalKeyDown, Key: "a", PreventDefault: pd})

	if prevented.Load() != 2 {
		t.Fatalf("PreventDefault called %d times, want 2", prevented.Load())
	}
}

func TestMonitorStopReleasesSubscriptions(t *testing.T) {
	bus := NewBus()
	m := NewMonitor()
	m.Start(bus)
	m.Start(bus)

	if got := bus.Subscribers(); got != len(SignalKinds) {
		t.Fatalf("Subscribers = %d, want %d", got, len(SignalKinds))
	}

	m.Stop()
	if got := bus.Subscribers(); got != 0 {
		t.Fatalf("Subscribers after Stop = %d, want 0", got)
	}

	bus.Publish(Signal{Kind: SignalBlur})
	m.Observe(Signal{Kind: SignalBlur})
	if m.Count() != 0 {
		t.Fatal("stopped monitor recorded a violation")
	}
}

func TestMonitorStampsSignalTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	bus := NewBus()
	m := NewMonitor(WithMonitorClock(func() time.Time { return fixed }))
	m.Start(bus)
	defer m.Stop()

	bus.Publish(Signal{Kind: SignalBlur})
	if got := m.Violations()[0].OccurredAt; !got.Equal(fixed) {
		t.Fatalf("OccurredAt = %v, want %v", got, fixed)
	}
}
