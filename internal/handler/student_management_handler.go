package handler

import (
	"net/http"
	"strconv"

	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// StudentManagementHandler handles the teacher's roster and login resets.
type StudentManagementHandler struct {
	submissionService *service.SubmissionService
	authService       *service.AuthService
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(
	submissionService *service.SubmissionService,
	authService *service.AuthService,
) *StudentManagementHandler {
	return &StudentManagementHandler{
		submissionService: submissionService,
		authService:       authService,
	}
}

// ListStudents godoc
// GET /api/v1/teacher/students
// Lists every student with their submission and live-session status.
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	students, err := h.submissionService.Students(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if students == nil {
		students = []service.StudentStatus{}
	}
	response.Success(c, http.StatusOK, gin.H{"students": students})
}

// ResetStudentLogin godoc
// POST /api/v1/teacher/students/:id/reset-login
// Clears a student's single-device session so they can sign in on another device.
func (h *StudentManagementHandler) ResetStudentLogin(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), studentID); err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "student login reset"})
}
