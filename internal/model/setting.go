package model

import "time"

// AppSetting is a key-value pair in app_settings. The exam schedule is stored here.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting keys.
const (
	SettingExamStart  = "exam_start_time"
	SettingExamEnd    = "exam_end_time"
	SettingExamActive = "exam_is_active"
)
