package repository

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/competition/model"
)

const (
	leaderboardKeyPrefix = "competition:leaderboard:"
	defaultBoardTTL      = 7 * 24 * time.Hour
)

// LeaderboardRepository keeps per-competition scores in a Redis sorted set keyed by user id.
type LeaderboardRepository interface {
	AddScore(ctx context.Context, competitionID, userID int64, delta int) error
	SetScore(ctx context.Context, competitionID, userID int64, score int) error
	Top(ctx context.Context, competitionID int64, limit int) ([]model.LeaderboardEntry, error)
	Score(ctx context.Context, competitionID, userID int64) (int, error)
}

type RedisLeaderboardRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewLeaderboardRepository(cacheClient cache.Cache, ttl time.Duration) LeaderboardRepository {
	if ttl <= 0 {
		ttl = defaultBoardTTL
	}
	return &RedisLeaderboardRepository{cache: cacheClient, ttl: ttl}
}

func (r *RedisLeaderboardRepository) AddScore(ctx context.Context, competitionID, userID int64, delta int) error {
	if r.cache == nil {
		return errors.New("leaderboard cache is not configured")
	}
	key := leaderboardKey(competitionID)
	if _, err := r.cache.ZIncrBy(ctx, key, float64(delta), strconv.FormatInt(userID, 10)); err != nil {
		return err
	}
	return r.cache.Expire(ctx, key, r.ttl)
}

// SetScore overwrites a member, used when rebuilding from the database.
func (r *RedisLeaderboardRepository) SetScore(ctx context.Context, competitionID, userID int64, score int) error {
	if r.cache == nil {
		return errors.New("leaderboard cache is not configured")
	}
	current, err := r.Score(ctx, competitionID, userID)
	if err != nil {
		return err
	}
	if current == score {
		return nil
	}
	return r.AddScore(ctx, competitionID, userID, score-current)
}

func (r *RedisLeaderboardRepository) Top(ctx context.Context, competitionID int64, limit int) ([]model.LeaderboardEntry, error) {
	if r.cache == nil {
		return nil, errors.New("leaderboard cache is not configured")
	}
	if limit <= 0 {
		return nil, nil
	}
	members, err := r.cache.ZRevRangeWithScores(ctx, leaderboardKey(competitionID), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	entries := make([]model.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		userID, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			Rank:   i + 1,
			UserID: userID,
			Score:  int(math.Round(m.Score)),
		})
	}
	return entries, nil
}

// Score returns 0 for users not on the board.
func (r *RedisLeaderboardRepository) Score(ctx context.Context, competitionID, userID int64) (int, error) {
	if r.cache == nil {
		return 0, errors.New("leaderboard cache is not configured")
	}
	score, err := r.cache.ZScore(ctx, leaderboardKey(competitionID), strconv.FormatInt(userID, 10))
	if err != nil {
		return 0, err
	}
	return int(math.Round(score)), nil
}

func leaderboardKey(competitionID int64) string {
	return leaderboardKeyPrefix + strconv.FormatInt(competitionID, 10)
}
