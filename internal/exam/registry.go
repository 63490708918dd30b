package exam

import (
	"sort"
	"sync"
	"time"

	"github.com/dcict/exam-backend/internal/model"
)

// Registry tracks the live session of each student. A session stays registered while
// the student is disconnected, so expiry still auto-submits, and leaves on teardown.
type Registry struct {
	mu       sync.Mutex
	sessions map[int]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int]*Session)}
}

// Get returns the live session for a student.
func (r *Registry) Get(studentID int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[studentID]
	return s, ok
}

// GetOrStart returns the student's live session, or builds and starts one.
// build runs outside the registry lock; if another caller wins the race its session is
// returned and the freshly built config is discarded unused.
func (r *Registry) GetOrStart(studentID int, build func() (SessionConfig, error)) (*Session, bool, error) {
	if s, ok := r.Get(studentID); ok {
		return s, false, nil
	}

	cfg, err := build()
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if s, ok := r.sessions[studentID]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	s := NewSession(cfg)
	s.onClose = r.remove
	r.sessions[studentID] = s
	r.mu.Unlock()

	s.Start()
	return s, true, nil
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.identity.ID]; ok && cur == s {
		delete(r.sessions, s.identity.ID)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot lists live sessions ordered by student id.
func (r *Registry) Snapshot() []model.ActiveSession {
	sessions := r.live()
	out := make([]model.ActiveSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Overview())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// ExtendAll moves every live session's deadline to end where it is later.
// It returns how many sessions were extended.
func (r *Registry) ExtendAll(end time.Time) int {
	n := 0
	for _, s := range r.live() {
		if s.ExtendDeadline(end) {
			n++
		}
	}
	return n
}

func (r *Registry) live() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// CloseAll tears down every session without submitting. Used on shutdown;
// drafts remain in the journal for the next process.
func (r *Registry) CloseAll() {
	for _, s := range r.live() {
		s.Close()
	}
}
