package service

import (
	"context"
	"fmt"
	"time"

	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/repository"
	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type LedgerConfig struct {
	DBProvider   db.Provider
	Submissions  repository.SubmissionRepository
	Participants repository.ParticipantRepository
	Progress     repository.ProgressRepository
	// Leaderboard and Publisher are optional post-commit hooks.
	Leaderboard repository.LeaderboardRepository
	Publisher   VerdictPublisher
	Timeouts    TimeoutConfig
	Now         func() time.Time
}

// Ledger writes terminal verdicts and credits participants at most once per problem.
type Ledger struct {
	dbProvider   db.Provider
	submissions  repository.SubmissionRepository
	participants repository.ParticipantRepository
	progress     repository.ProgressRepository
	leaderboard  repository.LeaderboardRepository
	publisher    VerdictPublisher
	timeouts     TimeoutConfig
	now          func() time.Time
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Participants == nil {
		return nil, fmt.Errorf("participant repository is required")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress repository is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		dbProvider:   cfg.DBProvider,
		submissions:  cfg.Submissions,
		participants: cfg.Participants,
		progress:     cfg.Progress,
		leaderboard:  cfg.Leaderboard,
		publisher:    cfg.Publisher,
		timeouts:     cfg.Timeouts,
		now:          cfg.Now,
	}, nil
}

// Record finalizes sub with v and reports whether the participant was credited.
// A submission that already holds a terminal status yields SubmissionAlreadyFinal
// and changes nothing.
func (l *Ledger) Record(ctx context.Context, sub *model.Submission, v model.Verdict) (bool, error) {
	if sub == nil || sub.ID == "" {
		return false, appErr.ValidationError("submission_id", "required")
	}
	if !v.Status.IsTerminal() {
		return false, appErr.Newf(appErr.InvalidParams, "verdict status %q is not terminal", v.Status)
	}
	if v.Score < 0 {
		v.Score = 0
	}

	judgedAt := l.now()
	credited := false
	ctxDB := withTimeout(ctx, l.timeouts.DB)
	defer ctxDB.cancel()

	err := withTransaction(ctxDB.ctx, l.dbProvider, func(tx db.Transaction) error {
		credited = false
		ok, err := l.submissions.Finalize(ctxDB.ctx, tx, sub.ID, v, judgedAt)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "finalize submission failed")
		}
		if !ok {
			return appErr.New(appErr.SubmissionAlreadyFinal).WithDetail("submission_id", sub.ID)
		}

		first, err := l.progress.InsertAttempt(ctxDB.ctx, tx, sub.ParticipantID, sub.ProblemID, sub.ID)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "record attempt failed")
		}
		if first {
			if err := l.participants.IncrementAttempted(ctxDB.ctx, tx, sub.ParticipantID); err != nil {
				return appErr.Wrapf(err, appErr.DatabaseError, "increment attempted failed")
			}
		}

		if v.Status != model.StatusAccepted {
			return nil
		}
		first, err = l.progress.InsertSolve(ctxDB.ctx, tx, sub.ParticipantID, sub.ProblemID, sub.ID, v.Score)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "record solve failed")
		}
		if !first {
			return nil
		}
		if err := l.participants.AddSolve(ctxDB.ctx, tx, sub.ParticipantID, v.Score); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "credit participant failed")
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	sub.Status = v.Status
	sub.Score = v.Score
	sub.ExecutionTimeMs = v.MaxExecutionTimeMs
	sub.MemoryKB = v.MaxMemoryKB
	sub.ErrorMessage = v.ErrorMessage
	sub.JudgedBy = v.JudgedBy
	sub.JudgedAt = &judgedAt

	l.afterCommit(ctx, sub, credited)
	return credited, nil
}

// afterCommit runs best-effort side effects; the database already holds the verdict.
func (l *Ledger) afterCommit(ctx context.Context, sub *model.Submission, credited bool) {
	ctxCache := withTimeout(ctx, l.timeouts.Cache)
	defer ctxCache.cancel()
	if err := l.submissions.Invalidate(ctxCache.ctx, sub.ID); err != nil {
		logger.Warn(ctx, "invalidate submission cache failed", zap.Error(err))
	}
	if credited && l.leaderboard != nil {
		if err := l.leaderboard.AddScore(ctxCache.ctx, sub.CompetitionID, sub.UserID, sub.Score); err != nil {
			logger.Warn(ctx, "update leaderboard failed",
				zap.Int64("competition_id", sub.CompetitionID),
				zap.Int64("user_id", sub.UserID),
				zap.Error(err),
			)
		}
	}

	if l.publisher == nil {
		return
	}
	event := model.VerdictEvent{
		SubmissionID:  sub.ID,
		CompetitionID: sub.CompetitionID,
		ProblemID:     sub.ProblemID,
		ParticipantID: sub.ParticipantID,
		UserID:        sub.UserID,
		Status:        sub.Status,
		Score:         sub.Score,
		Credited:      credited,
		JudgedBy:      sub.JudgedBy,
		JudgedAt:      sub.JudgedAt.Unix(),
	}
	ctxMQ := withTimeout(ctx, l.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := l.publisher.PublishVerdict(ctxMQ.ctx, event); err != nil {
		logger.Warn(ctx, "publish verdict event failed", zap.Error(err))
	}
}
