package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type settingStore interface {
	GetMany(ctx context.Context, keys ...string) (map[string]model.AppSetting, error)
	UpsertMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

var scheduleKeys = []string{model.SettingExamStart, model.SettingExamEnd, model.SettingExamActive}

// ScheduleService owns the process-wide exam window. Reads are served from memory;
// writes go to app_settings and are announced on Redis so other instances reload.
type ScheduleService struct {
	settings settingStore
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	current   model.ExamSchedule
	listeners []func(model.ExamSchedule)
}

// NewScheduleService creates an inactive ScheduleService. Call Load to read the stored window.
func NewScheduleService(settings settingStore, rdb *redis.Client, log zerolog.Logger) *ScheduleService {
	return &ScheduleService{
		settings: settings,
		rdb:      rdb,
		log:      log.With().Str("component", "schedule_service").Logger(),
		now:      time.Now,
	}
}

// Load replaces the in-memory schedule with the stored one.
func (s *ScheduleService) Load(ctx context.Context) error {
	stored, err := s.settings.GetMany(ctx, scheduleKeys...)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	sched, err := decodeSchedule(stored)
	if err != nil {
		s.log.Error().Err(err).Msg("Stored schedule is unreadable, treating as malformed")
		sched = model.ExamSchedule{IsActive: true}
	}

	s.mu.Lock()
	s.current = sched
	s.mu.Unlock()
	return nil
}

// OnChange registers fn to run after every Set, Clear, or reload announced by another instance.
func (s *ScheduleService) OnChange(fn func(model.ExamSchedule)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *ScheduleService) changed() {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	sched := s.Get()
	for _, fn := range listeners {
		fn(sched)
	}
}

// Get returns a copy of the current schedule.
func (s *ScheduleService) Get() model.ExamSchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := model.ExamSchedule{IsActive: s.current.IsActive}
	if s.current.StartTime != nil {
		t := *s.current.StartTime
		out.StartTime = &t
	}
	if s.current.EndTime != nil {
		t := *s.current.EndTime
		out.EndTime = &t
	}
	return out
}

// Set activates the window [start, end]. The last write wins.
func (s *ScheduleService) Set(ctx context.Context, start, end time.Time) (model.ExamSchedule, error) {
	start, end = start.UTC(), end.UTC()
	sched := model.ExamSchedule{StartTime: &start, EndTime: &end, IsActive: true}
	if err := sched.Validate(); err != nil {
		return model.ExamSchedule{}, err
	}

	err := s.settings.UpsertMany(ctx, map[string]string{
		model.SettingExamStart:  start.Format(time.RFC3339Nano),
		model.SettingExamEnd:    end.Format(time.RFC3339Nano),
		model.SettingExamActive: "true",
	})
	if err != nil {
		return model.ExamSchedule{}, fmt.Errorf("save schedule: %w", err)
	}

	s.mu.Lock()
	s.current = sched
	s.mu.Unlock()

	s.log.Info().Time("start", start).Time("end", end).Msg("Exam schedule set")
	s.announce(ctx)
	s.changed()
	return s.Get(), nil
}

// Clear deactivates the schedule.
func (s *ScheduleService) Clear(ctx context.Context) error {
	if err := s.settings.Delete(ctx, scheduleKeys...); err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}

	s.mu.Lock()
	s.current = model.ExamSchedule{}
	s.mu.Unlock()

	s.log.Info().Msg("Exam schedule cleared")
	s.announce(ctx)
	s.changed()
	return nil
}

func (s *ScheduleService) announce(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ScheduleChannel(), "changed").Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to announce schedule change")
	}
}

// Listen reloads the schedule whenever another instance announces a change.
// It blocks until ctx is cancelled.
func (s *ScheduleService) Listen(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.ScheduleChannel())
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Load(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Failed to reload schedule after change")
				continue
			}
			s.changed()
		}
	}
}

var errBadSetting = errors.New("bad schedule setting")

func decodeSchedule(stored map[string]model.AppSetting) (model.ExamSchedule, error) {
	active, ok := stored[model.SettingExamActive]
	if !ok {
		return model.ExamSchedule{}, nil
	}
	isActive, err := strconv.ParseBool(active.Value)
	if err != nil {
		return model.ExamSchedule{}, fmt.Errorf("%w: %s", errBadSetting, model.SettingExamActive)
	}

	sched := model.ExamSchedule{IsActive: isActive}
	if v, ok := stored[model.SettingExamStart]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.Value)
		if err != nil {
			return model.ExamSchedule{}, fmt.Errorf("%w: %s", errBadSetting, model.SettingExamStart)
		}
		sched.StartTime = &t
	}
	if v, ok := stored[model.SettingExamEnd]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.Value)
		if err != nil {
			return model.ExamSchedule{}, fmt.Errorf("%w: %s", errBadSetting, model.SettingExamEnd)
		}
		sched.EndTime = &t
	}
	return sched, nil
}
