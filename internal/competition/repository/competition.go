package repository

import (
	"context"

	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
)

type CompetitionRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Competition, error)
	IncrementParticipantCount(ctx context.Context, tx db.Transaction, id int64) error
}

// MySQLCompetitionRepository reads competitions without caching; the
// participant counter changes on every registration.
type MySQLCompetitionRepository struct {
	dbProvider db.Provider
}

func NewCompetitionRepository(provider db.Provider) CompetitionRepository {
	return &MySQLCompetitionRepository{dbProvider: provider}
}

func (r *MySQLCompetitionRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Competition, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, title, status, duration_minutes, capacity, participant_count, is_deleted
		FROM competitions
		WHERE id = ?
		LIMIT 1`
	c := &model.Competition{}
	var status string
	if err := querier.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&status,
		&c.DurationMinutes,
		&c.Capacity,
		&c.ParticipantCount,
		&c.IsDeleted,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	c.Status = model.CompetitionStatus(status)
	return c, nil
}

func (r *MySQLCompetitionRepository) IncrementParticipantCount(ctx context.Context, tx db.Transaction, id int64) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, "UPDATE competitions SET participant_count = participant_count + 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	ok, err := db.AffectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompetitionNotFound
	}
	return nil
}
