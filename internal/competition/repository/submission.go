package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
)

const (
	defaultSubmissionCacheTTL = 30 * time.Minute
	submissionCacheKeyPrefix  = "competition:submission:"
)

type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, s *model.Submission) error
	// GetByID serves judged submissions from cache; pending and running rows are always read fresh.
	GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Submission, error)
	// MarkRunning moves a pending submission to running and stamps started_at.
	// It reports false when the row was not pending.
	MarkRunning(ctx context.Context, tx db.Transaction, id string, startedAt time.Time) (bool, error)
	// Finalize writes the terminal verdict once. It reports false when the row
	// already holds a terminal status.
	Finalize(ctx context.Context, tx db.Transaction, id string, v model.Verdict, judgedAt time.Time) (bool, error)
	// ListStale returns rows in status that have waited since before. Pending
	// rows age from submitted_at, running rows from started_at.
	ListStale(ctx context.Context, tx db.Transaction, status model.SubmissionStatus, before time.Time, limit int) ([]*model.Submission, error)
	Invalidate(ctx context.Context, id string) error
}

type MySQLSubmissionRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
}

func NewSubmissionRepository(provider db.Provider, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(provider, cacheClient, defaultSubmissionCacheTTL)
}

func NewSubmissionRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	return &MySQLSubmissionRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
	}
}

const submissionColumns = `id, competition_id, problem_id, participant_id, user_id, language, source_code,
	source_key, source_hash, status, score, execution_time_ms, memory_kb, error_message, judged_by,
	submitted_at, started_at, judged_at`

func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, s *model.Submission) error {
	if s == nil {
		return errors.New("submission is nil")
	}
	if s.ID == "" {
		return errors.New("submissionID is required")
	}
	if s.ProblemID <= 0 || s.ParticipantID <= 0 {
		return errors.New("problemID and participantID are required")
	}
	if s.Language == "" {
		return errors.New("language is required")
	}
	if s.Status == "" {
		s.Status = model.StatusPending
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now()
	}

	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO competition_submissions
		(id, competition_id, problem_id, participant_id, user_id, language, source_code, source_key, source_hash, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = querier.Exec(
		ctx,
		query,
		s.ID,
		s.CompetitionID,
		s.ProblemID,
		s.ParticipantID,
		s.UserID,
		s.Language,
		s.SourceCode,
		s.SourceKey,
		s.SourceHash,
		string(s.Status),
		s.SubmittedAt,
	)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Submission, error) {
	if id == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache != nil && tx == nil {
		if cached, err := r.cache.Get(ctx, submissionCacheKey(id)); err == nil && cached != "" {
			if s, err := unmarshalSubmission(cached); err == nil && s != nil {
				return s, nil
			}
		}
	}

	s, err := r.getFromDB(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil && tx == nil && s.Status.IsTerminal() {
		if payload := marshalSubmission(s); payload != "" {
			_ = r.cache.Set(ctx, submissionCacheKey(id), payload, cache.JitterTTL(r.ttl))
		}
	}
	return s, nil
}

func (r *MySQLSubmissionRepository) MarkRunning(ctx context.Context, tx db.Transaction, id string, startedAt time.Time) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	result, err := querier.Exec(ctx,
		"UPDATE competition_submissions SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		string(model.StatusRunning), startedAt, id, string(model.StatusPending))
	if err != nil {
		return false, err
	}
	return db.AffectedOne(result)
}

func (r *MySQLSubmissionRepository) Finalize(ctx context.Context, tx db.Transaction, id string, v model.Verdict, judgedAt time.Time) (bool, error) {
	if !v.Status.IsTerminal() {
		return false, errors.New("verdict status is not terminal")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE competition_submissions
		SET status = ?, score = ?, execution_time_ms = ?, memory_kb = ?, error_message = ?, judged_by = ?, judged_at = ?
		WHERE id = ? AND status IN (?, ?)`
	result, err := querier.Exec(
		ctx,
		query,
		string(v.Status),
		v.Score,
		v.MaxExecutionTimeMs,
		v.MaxMemoryKB,
		v.ErrorMessage,
		v.JudgedBy,
		judgedAt,
		id,
		string(model.StatusPending),
		string(model.StatusRunning),
	)
	if err != nil {
		return false, err
	}
	return db.AffectedOne(result)
}

func (r *MySQLSubmissionRepository) ListStale(ctx context.Context, tx db.Transaction, status model.SubmissionStatus, before time.Time, limit int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	column := "submitted_at"
	if status == model.StatusRunning {
		column = "started_at"
	}
	query := "SELECT " + submissionColumns + `
		FROM competition_submissions
		WHERE status = ? AND ` + column + ` < ?
		ORDER BY ` + column + ` ASC
		LIMIT ?`
	rows, err := querier.Query(ctx, query, string(status), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *MySQLSubmissionRepository) Invalidate(ctx context.Context, id string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, submissionCacheKey(id))
}

func (r *MySQLSubmissionRepository) getFromDB(ctx context.Context, tx db.Transaction, id string) (*model.Submission, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + submissionColumns + " FROM competition_submissions WHERE id = ? LIMIT 1"
	s, err := scanSubmission(querier.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	s := &model.Submission{}
	var status string
	var errMsg sql.NullString
	var startedAt, judgedAt sql.NullTime
	if err := row.Scan(
		&s.ID,
		&s.CompetitionID,
		&s.ProblemID,
		&s.ParticipantID,
		&s.UserID,
		&s.Language,
		&s.SourceCode,
		&s.SourceKey,
		&s.SourceHash,
		&status,
		&s.Score,
		&s.ExecutionTimeMs,
		&s.MemoryKB,
		&errMsg,
		&s.JudgedBy,
		&s.SubmittedAt,
		&startedAt,
		&judgedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubmissionStatus(status)
	s.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		s.StartedAt = &t
	}
	if judgedAt.Valid {
		t := judgedAt.Time
		s.JudgedAt = &t
	}
	return s, nil
}

func submissionCacheKey(id string) string {
	return submissionCacheKeyPrefix + id
}

func marshalSubmission(s *model.Submission) string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var s model.Submission
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
