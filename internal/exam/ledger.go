package exam

import (
	"errors"
	"sync"

	"github.com/dcict/exam-backend/internal/model"
)

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidOption   = errors.New("option must be one of A, B, C, D")
)

// Completion is the answered/total ratio of a ledger.
type Completion struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// Ledger maps question ids to the student's latest choice. Safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	known   map[int]struct{}
	answers map[int]model.Option
}

// NewLedger creates an empty ledger over the given question set.
func NewLedger(questions []model.Question) *Ledger {
	known := make(map[int]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	return &Ledger{
		known:   known,
		answers: make(map[int]model.Option, len(questions)),
	}
}

// SetAnswer records a choice. The last write for a question wins.
func (l *Ledger) SetAnswer(questionID int, opt model.Option) error {
	if !opt.Valid() {
		return ErrInvalidOption
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.known[questionID]; !ok {
		return ErrUnknownQuestion
	}
	l.answers[questionID] = opt
	return nil
}

// Restore loads previously saved answers, skipping entries that no longer apply.
// It returns how many were accepted.
func (l *Ledger) Restore(answers map[int]model.Option) int {
	n := 0
	for qid, opt := range answers {
		if l.SetAnswer(qid, opt) == nil {
			n++
		}
	}
	return n
}

// Completion returns how many questions have an answer.
func (l *Ledger) Completion() Completion {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Completion{Answered: len(l.answers), Total: len(l.known)}
}

// IsComplete reports whether every question is answered.
func (l *Ledger) IsComplete() bool {
	c := l.Completion()
	return c.Total > 0 && c.Answered == c.Total
}

// Snapshot returns a copy of the answers.
func (l *Ledger) Snapshot() map[int]model.Option {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[int]model.Option, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}
