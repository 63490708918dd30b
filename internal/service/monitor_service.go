package service

import (
	"context"
	"fmt"

	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type monitorStore interface {
	ViolationCounts(ctx context.Context) (map[int]int64, error)
	SubmittedCount(ctx context.Context) (int64, error)
	Subscribe(ctx context.Context) *redis.PubSub
}

// MonitorSnapshot is the teacher's view of the running exam.
type MonitorSnapshot struct {
	Schedule        model.ExamSchedule    `json:"schedule"`
	Status          model.ScheduleStatus  `json:"status"`
	RemainingLabel  string                `json:"remaining_label"`
	ActiveSessions  []model.ActiveSession `json:"active_sessions"`
	ViolationCounts map[int]int64         `json:"violation_counts"`
	SubmittedCount  int64                 `json:"submitted_count"`
}

// MonitorService aggregates live sessions with persisted counters.
type MonitorService struct {
	store    monitorStore
	registry *exam.Registry
	schedule *ScheduleService
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store monitorStore, registry *exam.Registry, schedule *ScheduleService, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		store:    store,
		registry: registry,
		schedule: schedule,
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot gathers the persisted counters concurrently and merges them with the registry.
func (s *MonitorService) Snapshot(ctx context.Context) (*MonitorSnapshot, error) {
	snap := &MonitorSnapshot{ActiveSessions: s.registry.Snapshot()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.store.ViolationCounts(gctx)
		if err != nil {
			return fmt.Errorf("violation counts: %w", err)
		}
		snap.ViolationCounts = counts
		return nil
	})
	g.Go(func() error {
		n, err := s.store.SubmittedCount(gctx)
		if err != nil {
			return fmt.Errorf("submitted count: %w", err)
		}
		snap.SubmittedCount = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sched := s.schedule.Get()
	now := s.schedule.now()
	snap.Schedule = sched
	snap.Status = exam.Status(sched, now)
	snap.RemainingLabel = exam.FormatClock(exam.RemainingSeconds(sched, now))
	return snap, nil
}

// Subscribe opens the live event feed. The caller closes it.
func (s *MonitorService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.store.Subscribe(ctx)
}
