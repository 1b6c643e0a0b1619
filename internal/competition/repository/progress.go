package repository

import (
	"context"

	"campusjudge/internal/common/db"
)

// ProgressRepository holds the per (participant, problem) guard rows. Each
// insert succeeds once; later inserts hit uk_attempt or uk_solve and report false.
type ProgressRepository interface {
	InsertAttempt(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string) (bool, error)
	InsertSolve(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string, score int) (bool, error)
}

type MySQLProgressRepository struct {
	dbProvider db.Provider
}

func NewProgressRepository(provider db.Provider) ProgressRepository {
	return &MySQLProgressRepository{dbProvider: provider}
}

func (r *MySQLProgressRepository) InsertAttempt(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string) (bool, error) {
	query := "INSERT INTO competition_problem_attempts (participant_id, problem_id, first_submission_id) VALUES (?, ?, ?)"
	return r.insertOnce(ctx, tx, query, participantID, problemID, submissionID)
}

func (r *MySQLProgressRepository) InsertSolve(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string, score int) (bool, error) {
	query := "INSERT INTO competition_problem_solves (participant_id, problem_id, submission_id, score) VALUES (?, ?, ?, ?)"
	return r.insertOnce(ctx, tx, query, participantID, problemID, submissionID, score)
}

func (r *MySQLProgressRepository) insertOnce(ctx context.Context, tx db.Transaction, query string, args ...interface{}) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	if _, err := querier.Exec(ctx, query, args...); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
