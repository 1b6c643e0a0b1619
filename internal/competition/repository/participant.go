package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
)

type ParticipantRepository interface {
	// GetByCompetitionAndUser locks the row when called inside a transaction.
	GetByCompetitionAndUser(ctx context.Context, tx db.Transaction, competitionID, userID int64) (*model.Participant, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Participant, error)
	Create(ctx context.Context, tx db.Transaction, p *model.Participant) (int64, error)
	UpdateWindow(ctx context.Context, tx db.Transaction, id int64, status model.ParticipantStatus, start, end time.Time) error
	IncrementAttempted(ctx context.Context, tx db.Transaction, id int64) error
	AddSolve(ctx context.Context, tx db.Transaction, id int64, score int) error
	ListTop(ctx context.Context, tx db.Transaction, competitionID int64, limit int) ([]*model.Participant, error)
}

type MySQLParticipantRepository struct {
	dbProvider db.Provider
}

func NewParticipantRepository(provider db.Provider) ParticipantRepository {
	return &MySQLParticipantRepository{dbProvider: provider}
}

const participantColumns = "id, competition_id, user_id, status, start_time, end_time, score, problems_solved, problems_attempted"

func (r *MySQLParticipantRepository) GetByCompetitionAndUser(ctx context.Context, tx db.Transaction, competitionID, userID int64) (*model.Participant, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + participantColumns + " FROM competition_participants WHERE competition_id = ? AND user_id = ? LIMIT 1"
	if tx != nil {
		query += " FOR UPDATE"
	}
	return scanParticipant(querier.QueryRow(ctx, query, competitionID, userID))
}

func (r *MySQLParticipantRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Participant, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + participantColumns + " FROM competition_participants WHERE id = ? LIMIT 1"
	return scanParticipant(querier.QueryRow(ctx, query, id))
}

func (r *MySQLParticipantRepository) Create(ctx context.Context, tx db.Transaction, p *model.Participant) (int64, error) {
	if p == nil {
		return 0, errors.New("participant is nil")
	}
	if p.CompetitionID <= 0 || p.UserID <= 0 {
		return 0, errors.New("competitionID and userID are required")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO competition_participants (competition_id, user_id, status, start_time, end_time)
		VALUES (?, ?, ?, ?, ?)`
	result, err := querier.Exec(ctx, query, p.CompetitionID, p.UserID, string(p.Status), nullTime(p.StartTime), nullTime(p.EndTime))
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (r *MySQLParticipantRepository) UpdateWindow(ctx context.Context, tx db.Transaction, id int64, status model.ParticipantStatus, start, end time.Time) error {
	query := "UPDATE competition_participants SET status = ?, start_time = ?, end_time = ? WHERE id = ?"
	return r.updateOne(ctx, tx, id, query, string(status), start, end, id)
}

func (r *MySQLParticipantRepository) IncrementAttempted(ctx context.Context, tx db.Transaction, id int64) error {
	query := "UPDATE competition_participants SET problems_attempted = problems_attempted + 1 WHERE id = ?"
	return r.updateOne(ctx, tx, id, query, id)
}

// AddSolve credits score; score never decreases.
func (r *MySQLParticipantRepository) AddSolve(ctx context.Context, tx db.Transaction, id int64, score int) error {
	if score < 0 {
		score = 0
	}
	query := "UPDATE competition_participants SET score = score + ?, problems_solved = problems_solved + 1 WHERE id = ?"
	return r.updateOne(ctx, tx, id, query, score, id)
}

// updateOne runs an UPDATE on participant id. MySQL reports zero affected rows
// for an update that leaves values unchanged, so a miss is confirmed by a read.
func (r *MySQLParticipantRepository) updateOne(ctx context.Context, tx db.Transaction, id int64, query string, args ...interface{}) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	ok, err := db.AffectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		_, err = r.GetByID(ctx, tx, id)
		return err
	}
	return nil
}

func scanParticipant(row db.Row) (*model.Participant, error) {
	p := &model.Participant{}
	var status string
	var start, end sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.CompetitionID,
		&p.UserID,
		&status,
		&start,
		&end,
		&p.Score,
		&p.ProblemsSolved,
		&p.ProblemsAttempted,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	p.Status = model.ParticipantStatus(status)
	if start.Valid {
		t := start.Time
		p.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		p.EndTime = &t
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ListTop returns participants ordered by score, ties broken by fewer attempts then id.
func (r *MySQLParticipantRepository) ListTop(ctx context.Context, tx db.Transaction, competitionID int64, limit int) ([]*model.Participant, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + participantColumns + ` FROM competition_participants
		WHERE competition_id = ?
		ORDER BY score DESC, problems_attempted ASC, id ASC
		LIMIT ?`
	rows, err := querier.Query(ctx, query, competitionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
