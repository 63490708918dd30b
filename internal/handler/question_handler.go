package handler

import (
	"net/http"

	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// QuestionHandler exposes the shared question set to teachers.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/teacher/questions
// Lists the question set with its answer key.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questionService.AllQuestions(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions, "total": len(questions)})
}

// ReloadQuestions godoc
// POST /api/v1/teacher/questions/reload
// Drops the cached question set and reloads it from the database, e.g. after re-seeding.
// Sessions already running keep the set they started with.
func (h *QuestionHandler) ReloadQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.questionService.Invalidate(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to drop cached question set")
	}
	questions, err := h.questionService.AllQuestions(ctx)
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	h.log.Info().Int("questions", len(questions)).Msg("Question set reloaded")
	response.Success(c, http.StatusOK, gin.H{"total": len(questions)})
}
