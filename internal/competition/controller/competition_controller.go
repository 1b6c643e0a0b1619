package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusjudge/internal/common/http/middleware"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/service"
	"campusjudge/internal/judge/backend"
	"campusjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Submissions is the part of the orchestrator the HTTP layer needs.
type Submissions interface {
	Submit(ctx context.Context, input service.SubmitInput) (service.SubmitResult, error)
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	BackendKind() backend.Kind
	QueueDepth() int
}

type Leaderboard interface {
	Top(ctx context.Context, competitionID int64, limit int) ([]model.LeaderboardEntry, error)
}

// CompetitionController handles submission, leaderboard and health endpoints.
type CompetitionController struct {
	submissions Submissions
	leaderboard Leaderboard
}

func NewCompetitionController(submissions Submissions, leaderboard Leaderboard) *CompetitionController {
	return &CompetitionController{submissions: submissions, leaderboard: leaderboard}
}

// Register mounts all routes on router.
func (h *CompetitionController) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	api.POST("/competitions/:competitionId/problems/:problemId/submissions", h.Submit)
	api.GET("/competitions/:competitionId/leaderboard", h.Leaderboard)
	api.GET("/submissions/:id", h.GetSubmission)
}

// Submit accepts a submission and answers 202 before judging starts.
func (h *CompetitionController) Submit(c *gin.Context) {
	competitionID, ok := pathID(c, "competitionId")
	if !ok {
		response.BadRequest(c, "Invalid competition id")
		return
	}
	problemID, ok := pathID(c, "problemId")
	if !ok {
		response.BadRequest(c, "Invalid problem id")
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if req.UserID == 0 {
		if v, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(middleware.UserIDHeader)), 10, 64); err == nil {
			req.UserID = v
		}
	}

	result, err := h.submissions.Submit(c.Request.Context(), service.SubmitInput{
		CompetitionID: competitionID,
		ProblemID:     problemID,
		UserID:        req.UserID,
		Language:      req.Language,
		SourceCode:    req.SourceCode,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// GetSubmission returns the submission without its source.
func (h *CompetitionController) GetSubmission(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	sub, err := h.submissions.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, newSubmissionResponse(sub))
}

func (h *CompetitionController) Leaderboard(c *gin.Context) {
	competitionID, ok := pathID(c, "competitionId")
	if !ok {
		response.BadRequest(c, "Invalid competition id")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = v
	}
	entries, err := h.leaderboard.Top(c.Request.Context(), competitionID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, LeaderboardResponse{CompetitionID: competitionID, Entries: entries})
}

// Health reports the selected judge backend and queue depth.
func (h *CompetitionController) Health(c *gin.Context) {
	kind := h.submissions.BackendKind()
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Backend:    string(kind),
		Unjudged:   kind == backend.KindPassthrough,
		QueueDepth: h.submissions.QueueDepth(),
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// SubmitRequest is the submission payload. user_id may come from X-User-Id instead.
type SubmitRequest struct {
	UserID     int64  `json:"user_id"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

type SubmissionResponse struct {
	SubmissionID    string                 `json:"submission_id"`
	CompetitionID   int64                  `json:"competition_id"`
	ProblemID       int64                  `json:"problem_id"`
	UserID          int64                  `json:"user_id"`
	Language        string                 `json:"language"`
	Status          model.SubmissionStatus `json:"status"`
	Score           int                    `json:"score"`
	ExecutionTimeMs int                    `json:"execution_time_ms"`
	MemoryKB        int                    `json:"memory_kb"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	JudgedBy        string                 `json:"judged_by,omitempty"`
	SubmittedAt     time.Time              `json:"submitted_at"`
	JudgedAt        *time.Time             `json:"judged_at,omitempty"`
}

func newSubmissionResponse(sub *model.Submission) SubmissionResponse {
	return SubmissionResponse{
		SubmissionID:    sub.ID,
		CompetitionID:   sub.CompetitionID,
		ProblemID:       sub.ProblemID,
		UserID:          sub.UserID,
		Language:        sub.Language,
		Status:          sub.Status,
		Score:           sub.Score,
		ExecutionTimeMs: sub.ExecutionTimeMs,
		MemoryKB:        sub.MemoryKB,
		ErrorMessage:    sub.ErrorMessage,
		JudgedBy:        sub.JudgedBy,
		SubmittedAt:     sub.SubmittedAt,
		JudgedAt:        sub.JudgedAt,
	}
}

type LeaderboardResponse struct {
	CompetitionID int64                    `json:"competition_id"`
	Entries       []model.LeaderboardEntry `json:"entries"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Backend    string `json:"backend"`
	Unjudged   bool   `json:"unjudged"`
	QueueDepth int    `json:"queue_depth"`
}
