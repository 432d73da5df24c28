package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (exam taking, lobby, results).
type StudentPortalHandler struct {
	sessionService *service.ExamSessionService
	gradingService *service.GradingService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.ExamSessionService, gradingService *service.GradingService) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService: sessionService,
		gradingService: gradingService,
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Returns open and upcoming exams with the student's own session status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
// Creates the session on first entry or resumes it. Returns questions, saved answers,
// remaining time and warning state.
func (h *StudentPortalHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns remaining time, warning state and save status of the live session.
func (h *StudentPortalHandler) GetExamState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SaveAnswer godoc
// PUT /api/v1/student/exams/:exam_id/answers
// HTTP fallback for the stream's answer action. The answer is held in memory and
// written by the next autosave tick.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.ChangeAnswer(c.Request.Context(), examID, claims.UserID, req.QuestionID, req.AnswerInput)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Without {"confirm": true} it answers CONFIRM_REQUIRED with the answered/total prompt.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	sess, prompt, err := h.sessionService.Submit(c.Request.Context(), examID, claims.UserID, req.Confirm)
	if prompt != nil {
		response.FailWithData(c, http.StatusConflict, response.ErrConfirmRequired, gin.H{"prompt": prompt})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess, "redirect": dashboardPath})
}

// GetResult godoc
// GET /api/v1/student/sessions/:id/result
// Returns the finalized result. Per-question review only when the exam allows it.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.gradingService.Report(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}
