package repository

import "errors"

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrProblemNotFound     = errors.New("problem not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSubmissionNotFound  = errors.New("submission not found")

	// ErrDuplicate is a unique key conflict on insert.
	ErrDuplicate = errors.New("duplicate record")
)
