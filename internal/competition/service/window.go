package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/repository"
	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type WindowConfig struct {
	DBProvider   db.Provider
	Competitions repository.CompetitionRepository
	Participants repository.ParticipantRepository
	Timeout      time.Duration
	Now          func() time.Time
}

// WindowManager lazily creates and repairs a participant's live window.
type WindowManager struct {
	dbProvider   db.Provider
	competitions repository.CompetitionRepository
	participants repository.ParticipantRepository
	timeout      time.Duration
	now          func() time.Time
}

func NewWindowManager(cfg WindowConfig) (*WindowManager, error) {
	if cfg.Competitions == nil {
		return nil, fmt.Errorf("competition repository is required")
	}
	if cfg.Participants == nil {
		return nil, fmt.Errorf("participant repository is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WindowManager{
		dbProvider:   cfg.DBProvider,
		competitions: cfg.Competitions,
		participants: cfg.Participants,
		timeout:      cfg.Timeout,
		now:          cfg.Now,
	}, nil
}

// EnsureActive returns the participant for (competition, user) with a window
// covering now. A missing participant is created active, an inactive one is
// activated with a fresh window, and an expired window is extended to now+duration.
// Capacity is only checked for a warning.
func (m *WindowManager) EnsureActive(ctx context.Context, competition *model.Competition, userID int64) (*model.Participant, model.Window, error) {
	if competition == nil {
		return nil, model.Window{}, appErr.New(appErr.ContestNotFound)
	}
	if userID <= 0 {
		return nil, model.Window{}, appErr.ValidationError("user_id", "required")
	}

	ctxDB := withTimeout(ctx, m.timeout)
	defer ctxDB.cancel()

	var participant *model.Participant
	err := withTransaction(ctxDB.ctx, m.dbProvider, func(tx db.Transaction) error {
		p, err := m.ensure(ctxDB.ctx, tx, competition, userID)
		if err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, model.Window{}, err
	}
	return participant, model.Window{Start: *participant.StartTime, End: *participant.EndTime}, nil
}

func (m *WindowManager) ensure(ctx context.Context, tx db.Transaction, competition *model.Competition, userID int64) (*model.Participant, error) {
	now := m.now()
	duration := competition.Duration()

	p, err := m.participants.GetByCompetitionAndUser(ctx, tx, competition.ID, userID)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return m.register(ctx, tx, competition, userID, now)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get participant failed")
	}

	switch {
	case p.Status != model.ParticipantActive || p.StartTime == nil || p.EndTime == nil:
		end := now.Add(duration)
		if err := m.participants.UpdateWindow(ctx, tx, p.ID, model.ParticipantActive, now, end); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "activate participant failed")
		}
		logger.Info(ctx, "participant activated",
			zap.Int64("competition_id", competition.ID),
			zap.Int64("participant_id", p.ID),
			zap.String("previous_status", string(p.Status)),
		)
		p.Status = model.ParticipantActive
		p.StartTime, p.EndTime = &now, &end
	case now.After(*p.EndTime):
		start := *p.StartTime
		end := now.Add(duration)
		if err := m.participants.UpdateWindow(ctx, tx, p.ID, model.ParticipantActive, start, end); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "extend participant window failed")
		}
		logger.Info(ctx, "participant window extended",
			zap.Int64("competition_id", competition.ID),
			zap.Int64("participant_id", p.ID),
			zap.Time("previous_end", *p.EndTime),
			zap.Time("end", end),
		)
		p.EndTime = &end
	}
	return p, nil
}

func (m *WindowManager) register(ctx context.Context, tx db.Transaction, competition *model.Competition, userID int64, now time.Time) (*model.Participant, error) {
	end := now.Add(competition.Duration())
	p := &model.Participant{
		CompetitionID: competition.ID,
		UserID:        userID,
		Status:        model.ParticipantActive,
		StartTime:     &now,
		EndTime:       &end,
	}
	if _, err := m.participants.Create(ctx, tx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// lost a concurrent registration; the winner's row is authoritative
			winner, getErr := m.participants.GetByCompetitionAndUser(ctx, tx, competition.ID, userID)
			if getErr != nil {
				return nil, appErr.Wrapf(getErr, appErr.DatabaseError, "reload participant failed")
			}
			return winner, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "create participant failed")
	}
	if err := m.competitions.IncrementParticipantCount(ctx, tx, competition.ID); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "update participant count failed")
	}
	if competition.Capacity > 0 && competition.ParticipantCount+1 > competition.Capacity {
		logger.Warn(ctx, "competition over capacity",
			zap.Int64("competition_id", competition.ID),
			zap.Int("capacity", competition.Capacity),
			zap.Int("participants", competition.ParticipantCount+1),
		)
	}
	logger.Info(ctx, "participant registered on first submission",
		zap.Int64("competition_id", competition.ID),
		zap.Int64("participant_id", p.ID),
	)
	return p, nil
}
