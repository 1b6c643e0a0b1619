package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "competition:problem:"
)

// ProblemRepository is the test case store. Problems are loaded with their
// visible and hidden cases in ordinal order.
type ProblemRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Problem, error)
	Invalidate(ctx context.Context, id int64) error
}

type MySQLProblemRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

func NewProblemRepository(provider db.Provider, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(provider, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Problem, error) {
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*model.Problem](
			ctx,
			r.cache,
			problemKey(id),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p *model.Problem) bool { return p == nil },
			marshalProblem,
			unmarshalProblem,
			func(ctx context.Context) (*model.Problem, error) {
				p, err := r.getFromDB(ctx, nil, id)
				if errors.Is(err, ErrProblemNotFound) {
					return nil, nil
				}
				return p, err
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getFromDB(ctx, tx, id)
}

func (r *MySQLProblemRepository) Invalidate(ctx context.Context, id int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemKey(id))
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, id int64) (*model.Problem, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, competition_id, title, points, time_limit_ms, memory_limit_kb, is_deleted
		FROM competition_problems
		WHERE id = ?
		LIMIT 1`
	p := &model.Problem{}
	if err := querier.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.CompetitionID,
		&p.Title,
		&p.Points,
		&p.TimeLimitMs,
		&p.MemoryLimitKB,
		&p.IsDeleted,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	rows, err := querier.Query(ctx, `
		SELECT input, expected_output, is_hidden
		FROM competition_test_cases
		WHERE problem_id = ?
		ORDER BY is_hidden ASC, ordinal ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput, &tc.Hidden); err != nil {
			return nil, err
		}
		if tc.Hidden {
			p.Hidden = append(p.Hidden, tc)
		} else {
			p.Visible = append(p.Visible, tc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func problemKey(id int64) string {
	return problemKeyPrefix + strconv.FormatInt(id, 10)
}

func marshalProblem(p *model.Problem) string {
	if p == nil {
		return ""
	}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProblem(data string) (*model.Problem, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
