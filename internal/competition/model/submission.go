package model

import "time"

type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "pending"
	StatusRunning             SubmissionStatus = "running"
	StatusAccepted            SubmissionStatus = "accepted"
	StatusWrongAnswer         SubmissionStatus = "wrong_answer"
	StatusCompilationError    SubmissionStatus = "compilation_error"
	StatusRuntimeError        SubmissionStatus = "runtime_error"
	StatusTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
)

// IsTerminal reports whether s is a final judging outcome.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusCompilationError, StatusRuntimeError,
		StatusTimeLimitExceeded, StatusMemoryLimitExceeded:
		return true
	}
	return false
}

type Submission struct {
	ID              string           `json:"id"`
	CompetitionID   int64            `json:"competition_id"`
	ProblemID       int64            `json:"problem_id"`
	ParticipantID   int64            `json:"participant_id"`
	UserID          int64            `json:"user_id"`
	Language        string           `json:"language"`
	SourceCode      string           `json:"source_code,omitempty"`
	SourceKey       string           `json:"source_key,omitempty"`
	SourceHash      string           `json:"source_hash,omitempty"`
	Status          SubmissionStatus `json:"status"`
	Score           int              `json:"score"`
	ExecutionTimeMs int              `json:"execution_time_ms"`
	MemoryKB        int              `json:"memory_kb"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	JudgedBy        string           `json:"judged_by,omitempty"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	JudgedAt        *time.Time       `json:"judged_at,omitempty"`
}

// Verdict is the aggregate outcome written once per submission.
type Verdict struct {
	Status             SubmissionStatus `json:"status"`
	Score              int              `json:"score"`
	MaxExecutionTimeMs int              `json:"max_execution_time_ms"`
	MaxMemoryKB        int              `json:"max_memory_kb"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	JudgedBy           string           `json:"judged_by,omitempty"`
}

// FailedVerdict is the runtime_error outcome used when judging itself breaks.
func FailedVerdict(message string) Verdict {
	return Verdict{Status: StatusRuntimeError, ErrorMessage: message}
}

// VerdictEvent is published after a verdict is committed.
type VerdictEvent struct {
	SubmissionID  string           `json:"submission_id"`
	CompetitionID int64            `json:"competition_id"`
	ProblemID     int64            `json:"problem_id"`
	ParticipantID int64            `json:"participant_id"`
	UserID        int64            `json:"user_id"`
	Status        SubmissionStatus `json:"status"`
	Score         int              `json:"score"`
	Credited      bool             `json:"credited"`
	JudgedBy      string           `json:"judged_by"`
	JudgedAt      int64            `json:"judged_at"`
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank   int   `json:"rank"`
	UserID int64 `json:"user_id"`
	Score  int   `json:"score"`
}
