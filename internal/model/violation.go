package model

import "time"

// ViolationKind classifies a suspicious browser signal.
type ViolationKind string

const (
	ViolationMouseLeft          ViolationKind = "mouse_left"
	ViolationTabSwitch          ViolationKind = "tab_switch"
	ViolationWindowBlur         ViolationKind = "window_blur"
	ViolationRightClick         ViolationKind = "right_click"
	ViolationResizeSuspected    ViolationKind = "resize_suspected"
	ViolationDevToolsKeyAttempt ViolationKind = "devtools_key_attempt"
)

var violationLabels = map[ViolationKind]string{
	ViolationMouseLeft:          "Mouse left exam window",
	ViolationTabSwitch:          "Switched tab or minimized",
	ViolationWindowBlur:         "Window lost focus",
	ViolationRightClick:         "Right-click attempted",
	ViolationResizeSuspected:    "Window resized (possible devtools)",
	ViolationDevToolsKeyAttempt: "Developer tools shortcut pressed",
}

// Label is the human-readable description shown to reviewers.
func (k ViolationKind) Label() string {
	if l, ok := violationLabels[k]; ok {
		return l
	}
	return string(k)
}

// ViolationRecord is one entry of a session's append-only integrity log.
type ViolationRecord struct {
	Kind       ViolationKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ViolationEvent is a violation queued for the live log table.
type ViolationEvent struct {
	StudentID  int           `json:"student_id"`
	Kind       ViolationKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
}
