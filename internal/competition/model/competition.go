package model

import "time"

type CompetitionStatus string

const (
	CompetitionUpcoming CompetitionStatus = "upcoming"
	CompetitionOngoing  CompetitionStatus = "ongoing"
	CompetitionEnded    CompetitionStatus = "ended"
)

// Competition is a timed contest. Capacity is advisory once a competition is running.
type Competition struct {
	ID               int64             `json:"id"`
	Title            string            `json:"title"`
	Status           CompetitionStatus `json:"status"`
	DurationMinutes  int               `json:"duration_minutes"`
	Capacity         int               `json:"capacity"`
	ParticipantCount int               `json:"participant_count"`
	IsDeleted        bool              `json:"is_deleted"`
}

// Duration is the per-participant window length.
func (c *Competition) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// TestCase is one input and expected output pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden"`
}

type Problem struct {
	ID            int64      `json:"id"`
	CompetitionID int64      `json:"competition_id"`
	Title         string     `json:"title"`
	Points        int        `json:"points"`
	TimeLimitMs   int        `json:"time_limit_ms"`
	MemoryLimitKB int        `json:"memory_limit_kb"`
	IsDeleted     bool       `json:"is_deleted"`
	Visible       []TestCase `json:"visible_test_cases,omitempty"`
	Hidden        []TestCase `json:"hidden_test_cases,omitempty"`
}

// TestCases returns visible cases followed by hidden ones. A problem without
// any gets a single empty case so judging still produces a verdict.
func (p *Problem) TestCases() []TestCase {
	cases := make([]TestCase, 0, len(p.Visible)+len(p.Hidden))
	cases = append(cases, p.Visible...)
	for _, tc := range p.Hidden {
		tc.Hidden = true
		cases = append(cases, tc)
	}
	if len(cases) == 0 {
		cases = append(cases, TestCase{})
	}
	return cases
}

type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantActive     ParticipantStatus = "active"
	ParticipantCompleted  ParticipantStatus = "completed"
)

type Participant struct {
	ID                int64             `json:"id"`
	CompetitionID     int64             `json:"competition_id"`
	UserID            int64             `json:"user_id"`
	Status            ParticipantStatus `json:"status"`
	StartTime         *time.Time        `json:"start_time,omitempty"`
	EndTime           *time.Time        `json:"end_time,omitempty"`
	Score             int               `json:"score"`
	ProblemsSolved    int               `json:"problems_solved"`
	ProblemsAttempted int               `json:"problems_attempted"`
}

// Window is a participant's live interval.
type Window struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}
