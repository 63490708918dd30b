package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/dcict/exam-backend/internal/exam"
	"github.com/dcict/exam-backend/internal/model"
	"github.com/dcict/exam-backend/internal/response"
	"github.com/dcict/exam-backend/internal/service"
	"github.com/dcict/exam-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// ScheduleHandler lets teachers read and change the exam window.
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

type scheduleView struct {
	model.ExamSchedule
	Status         model.ScheduleStatus `json:"status"`
	RemainingLabel string               `json:"remaining_label"`
}

func viewSchedule(s model.ExamSchedule) scheduleView {
	now := time.Now()
	return scheduleView{
		ExamSchedule:   s,
		Status:         exam.Status(s, now),
		RemainingLabel: exam.FormatClock(exam.RemainingSeconds(s, now)),
	}
}

// GetSchedule godoc
// GET /api/v1/teacher/schedule
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"schedule": viewSchedule(h.scheduleService.Get())})
}

// UpdateSchedule godoc
// PUT /api/v1/teacher/schedule
// Activates the window [start_time, end_time]. Students already in the exam keep the
// end time their session started with.
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req model.UpdateScheduleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sched, err := h.scheduleService.Set(c.Request.Context(), req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, model.ErrScheduleMalformed) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"end_time": "end_time must be after start_time"})
			return
		}
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"schedule": viewSchedule(sched)})
}

// ClearSchedule godoc
// DELETE /api/v1/teacher/schedule
func (h *ScheduleHandler) ClearSchedule(c *gin.Context) {
	if err := h.scheduleService.Clear(c.Request.Context()); err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"schedule": viewSchedule(model.ExamSchedule{})})
}
