package handler

import (
	"net/http"

	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/middleware"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StudentPortalHandler handles student-facing endpoints (dashboard, exam entry).
type StudentPortalHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(examService *service.ExamService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		examService: examService,
		log:         log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetDashboard godoc
// GET /api/v1/student/dashboard
// Returns the exam window status and whether the student has already submitted.
func (h *StudentPortalHandler) GetDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	dash, err := h.examService.Dashboard(c.Request.Context(), claims.Identity())
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Dashboard failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, dash)
}

// EnterExam godoc
// GET /api/v1/student/exam
// Runs the availability gate. Admitted students get the questions, their saved answers
// and the remaining time; everyone else is redirected.
func (h *StudentPortalHandler) EnterExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.FailWithRedirect(c, http.StatusSeeOther, response.ErrTokenRequired, "/login")
		return
	}

	entry, err := h.examService.Enter(c.Request.Context(), claims.Identity())
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Exam entry failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	a := entry.Admission
	switch {
	case a.Blocked != nil:
		h.log.Error().Err(a.Blocked).Int("student_id", claims.UserID).Msg("Exam blocked")
		response.FailWithData(c, http.StatusConflict, response.ErrExamBlocked, gin.H{"state": model.StateBlocked})
	case !a.Allowed:
		response.FailWithRedirect(c, http.StatusSeeOther, denyCode(a.Reason), a.Redirect)
	default:
		response.Success(c, http.StatusOK, service.EntryResponse(entry))
	}
}

func denyCode(reason exam.DenyReason) response.ErrCode {
	switch reason {
	case exam.DenyUnauthenticated:
		return response.ErrTokenRequired
	case exam.DenyNotStudent:
		return response.ErrStudentAccessOnly
	case exam.DenyAlreadySubmitted:
		return response.ErrAlreadySubmitted
	default:
		return response.ErrExamNotAvailable
	}
}
