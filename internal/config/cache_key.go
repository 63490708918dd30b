package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's active login.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentDraftAnswersKey returns the hash mirroring an in-progress ledger.
func (r *CacheKeyStruct) StudentDraftAnswersKey(studentID int) string {
	return fmt.Sprintf("student:%d:exam:answers", studentID)
}

// StudentDraftViolationsKey returns the list mirroring an in-progress violation log.
func (r *CacheKeyStruct) StudentDraftViolationsKey(studentID int) string {
	return fmt.Sprintf("student:%d:exam:violations", studentID)
}

// StudentDraftPattern matches the draft keys of every student, answers and violations alike.
func (r *CacheKeyStruct) StudentDraftPattern() string {
	return "student:*:exam:*"
}

// ActiveSessionsKey returns the hash of students currently connected to the exam stream.
func (r *CacheKeyStruct) ActiveSessionsKey() string {
	return "exam:active_sessions"
}

// QuestionSetKey returns the cache key for the shared question set.
func (r *CacheKeyStruct) QuestionSetKey() string {
	return "exam:questions"
}

// ScheduleChannel returns the PubSub channel announcing schedule changes.
func (r *CacheKeyStruct) ScheduleChannel() string {
	return "exam:schedule:changed"
}

// MonitorChannel returns the PubSub channel feeding the teacher monitor.
func (r *CacheKeyStruct) MonitorChannel() string {
	return "exam:monitor"
}

var CacheKey = NewCacheKeyStruct()
