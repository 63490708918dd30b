package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SubmissionHandler serves the teacher's results screens.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// ListSubmissions godoc
// GET /api/v1/teacher/submissions
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	subs, err := h.submissionService.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// GetSubmission godoc
// GET /api/v1/teacher/submissions/:student_id
// Returns the submission with every answer checked against the key and labelled violations.
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	studentID, ok := studentIDParam(c)
	if !ok {
		return
	}

	review, err := h.submissionService.Review(c.Request.Context(), studentID)
	if err != nil {
		if errors.Is(err, model.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submission": review})
}

// DeleteSubmission godoc
// DELETE /api/v1/teacher/submissions/:student_id
// Removes the submission so the student can sit the exam again.
func (h *SubmissionHandler) DeleteSubmission(c *gin.Context) {
	studentID, ok := studentIDParam(c)
	if !ok {
		return
	}

	if err := h.submissionService.Delete(c.Request.Context(), studentID); err != nil {
		if errors.Is(err, model.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "submission deleted"})
}

// ExportSubmissions godoc
// GET /api/v1/teacher/submissions/export
// Downloads all results as an Excel workbook.
func (h *SubmissionHandler) ExportSubmissions(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.submissionService.ExportXLSX(c.Request.Context(), &buf); err != nil {
		if errors.Is(err, service.ErrNothingToExport) {
			response.Fail(c, http.StatusNotFound, response.ErrNothingToExport)
			return
		}
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("exam-results-%s.xlsx", time.Now().Format("20060102-1504"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func studentIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
