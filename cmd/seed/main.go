package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/database"
	"github.com/dcict/exam-backend/internal/logger"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/repository"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/dcict/exam-backend/internal/validator"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var (
		questionsPath string
		studentCount  int
		password      string
	)
	flag.StringVar(&questionsPath, "questions", "data/questions.example.json", "Path to the question set JSON")
	flag.IntVar(&studentCount, "students", 0, "Number of demo students to create (student01@exam.local ...)")
	flag.StringVar(&password, "password", "password123", "Password for demo accounts")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	questionRepo := repository.NewQuestionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	questionService := service.NewQuestionService(questionRepo, rdb, log)

	// ─── Questions ─────────────────────────────────────────────────────
	questions, err := loadQuestions(questionsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", questionsPath).Msg("Failed to load questions")
	}
	for _, q := range questions {
		if err := questionRepo.Upsert(ctx, &q); err != nil {
			log.Fatal().Err(err).Int("question_id", q.ID).Msg("Failed to upsert question")
		}
	}
	if err := questionService.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached question set")
	}
	fmt.Printf("Seeded %d questions from %s\n", len(questions), questionsPath)

	// ─── Demo Accounts ─────────────────────────────────────────────────
	if studentCount <= 0 {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	created := 0
	accounts := []model.User{{Name: "Demo Teacher", Email: "teacher@exam.local", Role: model.RoleTeacher}}
	for i := 1; i <= studentCount; i++ {
		accounts = append(accounts, model.User{
			Name:  fmt.Sprintf("Student %02d", i),
			Email: fmt.Sprintf("student%02d@exam.local", i),
			Role:  model.RoleStudent,
		})
	}
	for _, u := range accounts {
		u.PasswordHash = string(hash)
		err := userRepo.Create(ctx, &u)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("email", u.Email).Msg("Failed to create user")
		}
		created++
	}
	fmt.Printf("Created %d accounts (%d skipped as existing)\n", created, len(accounts)-created)
}

// loadQuestions reads and validates the question set. Any invalid entry aborts the seed.
func loadQuestions(path string) ([]model.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []model.SeedQuestion
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(seeds) == 0 {
		return nil, errors.New("question set is empty")
	}

	seen := make(map[int]bool, len(seeds))
	out := make([]model.Question, 0, len(seeds))
	for i, s := range seeds {
		if fields := validator.Struct(s); fields != nil {
			return nil, fmt.Errorf("question #%d: %v", i+1, fields)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("question #%d: duplicate id %d", i+1, s.ID)
		}
		seen[s.ID] = true

		q := model.Question{ID: s.ID, Text: s.Text, CorrectOption: s.CorrectOption}
		copy(q.Options[:], s.Options)
		out = append(out, q)
	}
	return out, nil
}
