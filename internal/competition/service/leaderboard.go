package service

import (
	"context"
	"fmt"

	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/repository"
	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 500
)

type LeaderboardConfig struct {
	Board        repository.LeaderboardRepository
	Participants repository.ParticipantRepository
	Timeouts     TimeoutConfig
}

// LeaderboardService reads the Redis board and rebuilds it from participant
// rows when it is empty or unreachable.
type LeaderboardService struct {
	board        repository.LeaderboardRepository
	participants repository.ParticipantRepository
	timeouts     TimeoutConfig
}

func NewLeaderboardService(cfg LeaderboardConfig) (*LeaderboardService, error) {
	if cfg.Participants == nil {
		return nil, fmt.Errorf("participant repository is required")
	}
	return &LeaderboardService{
		board:        cfg.Board,
		participants: cfg.Participants,
		timeouts:     cfg.Timeouts,
	}, nil
}

func (s *LeaderboardService) Top(ctx context.Context, competitionID int64, limit int) ([]model.LeaderboardEntry, error) {
	if competitionID <= 0 {
		return nil, appErr.ValidationError("competition_id", "required")
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	if s.board != nil {
		ctxCache := withTimeout(ctx, s.timeouts.Cache)
		entries, err := s.board.Top(ctxCache.ctx, competitionID, limit)
		ctxCache.cancel()
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			logger.Warn(ctx, "read leaderboard cache failed", zap.Int64("competition_id", competitionID), zap.Error(err))
		}
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	participants, err := s.participants.ListTop(ctxDB.ctx, nil, competitionID, limit)
	ctxDB.cancel()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.RankingUnavailable, "load leaderboard failed")
	}

	entries := make([]model.LeaderboardEntry, 0, len(participants))
	for i, p := range participants {
		entries = append(entries, model.LeaderboardEntry{Rank: i + 1, UserID: p.UserID, Score: p.Score})
	}
	s.rebuild(ctx, competitionID, entries)
	return entries, nil
}

func (s *LeaderboardService) rebuild(ctx context.Context, competitionID int64, entries []model.LeaderboardEntry) {
	if s.board == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	for _, e := range entries {
		if e.Score <= 0 {
			continue
		}
		if err := s.board.SetScore(ctxCache.ctx, competitionID, e.UserID, e.Score); err != nil {
			logger.Warn(ctx, "rebuild leaderboard failed", zap.Int64("competition_id", competitionID), zap.Error(err))
			return
		}
	}
}
