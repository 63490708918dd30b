package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// QuestionCacheTTL bounds how long the Redis copy of the question set lives.
const QuestionCacheTTL = time.Hour

type questionLister interface {
	ListAll(ctx context.Context) ([]model.Question, error)
}

// QuestionService serves the shared, read-only question set.
// Lookups go memory → Redis → PostgreSQL.
type QuestionService struct {
	repo questionLister
	rdb  *redis.Client
	log  zerolog.Logger

	mu     sync.RWMutex
	cached []model.Question
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(repo questionLister, rdb *redis.Client, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "question_service").Logger(),
	}
}

// AllQuestions returns the question set. Callers must not modify the returned slice.
func (s *QuestionService) AllQuestions(ctx context.Context) ([]model.Question, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	key := config.CacheKey.QuestionSetKey()
	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var qs []model.Question
		if err := json.Unmarshal(raw, &qs); err == nil {
			s.store(qs)
			return qs, nil
		}
		s.log.Warn().Msg("Discarding unreadable question cache")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("Question cache unavailable, reading database")
	}

	qs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(qs) == 0 {
		return qs, nil
	}

	if data, err := json.Marshal(qs); err == nil {
		if err := s.rdb.Set(ctx, key, data, QuestionCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache question set")
		}
	}
	s.store(qs)
	return qs, nil
}

func (s *QuestionService) store(qs []model.Question) {
	s.mu.Lock()
	s.cached = qs
	s.mu.Unlock()
}

// Invalidate drops both cached copies, e.g. after seeding.
func (s *QuestionService) Invalidate(ctx context.Context) error {
	s.store(nil)
	return s.rdb.Del(ctx, config.CacheKey.QuestionSetKey()).Err()
}

// Prewarm loads the question set into the caches at startup.
func (s *QuestionService) Prewarm(ctx context.Context) {
	qs, err := s.AllQuestions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to prewarm question cache")
		return
	}
	s.log.Info().Int("questions", len(qs)).Msg("Question cache warmed")
}
