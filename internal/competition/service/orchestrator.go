package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/storage"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/repository"
	"campusjudge/internal/judge/backend"
	"campusjudge/internal/judge/verdict"
	appErr "campusjudge/pkg/errors"
	"campusjudge/pkg/utils/contextkey"
	"campusjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes   = 64 * 1024
	defaultProcessTimeout = 5 * time.Minute
	defaultStaleAfter     = 10 * time.Minute
	defaultSourcePrefix   = "competition-submissions"
	defaultRecoverBatch   = 200
	recoverLockKey        = "competition:judge:recover"
	rateUserKeyPrefix     = "competition:rate:user:"
	rateIPKeyPrefix       = "competition:rate:ip:"

	queueFullMessage   = "judge queue is full"
	interruptedMessage = "judging interrupted before a verdict was recorded"
)

// RateLimitConfig throttles submissions per user and per client IP inside a
// fixed window. Zero limits disable the corresponding check.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

type OrchestratorConfig struct {
	Competitions repository.CompetitionRepository
	Problems     repository.ProblemRepository
	Submissions  repository.SubmissionRepository
	Window       *WindowManager
	Ledger       *Ledger
	Backend      backend.Backend

	// Sources archives submitted code. Optional.
	Sources   *storage.ZstdBlobs
	// Cache guards Recover across replicas and backs rate limiting. Optional.
	Cache     cache.Cache
	RateLimit RateLimitConfig

	Dispatcher      DispatcherConfig
	SourceKeyPrefix string
	MaxCodeBytes    int
	ProcessTimeout  time.Duration
	StaleAfter      time.Duration
	RecoverBatch    int
	Timeouts        TimeoutConfig
	Now             func() time.Time
}

// Orchestrator accepts submissions and judges them asynchronously on a bounded pool.
type Orchestrator struct {
	competitions repository.CompetitionRepository
	problems     repository.ProblemRepository
	submissions  repository.SubmissionRepository
	window       *WindowManager
	ledger       *Ledger
	backend      backend.Backend
	sources      *storage.ZstdBlobs
	cache        cache.Cache
	dispatcher   *Dispatcher
	rateLimit    RateLimitConfig

	sourceKeyPrefix string
	maxCodeBytes    int
	processTimeout  time.Duration
	staleAfter      time.Duration
	recoverBatch    int
	timeouts        TimeoutConfig
	now             func() time.Time
}

type SubmitInput struct {
	CompetitionID int64
	ProblemID     int64
	UserID        int64
	Language      string
	SourceCode    string
	ClientIP      string
}

type SubmitResult struct {
	SubmissionID string                 `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	SubmittedAt  time.Time              `json:"submitted_at"`
	WindowEnd    time.Time              `json:"window_end"`
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Competitions == nil {
		return nil, fmt.Errorf("competition repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Window == nil {
		return nil, fmt.Errorf("window manager is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("judge backend is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.StaleAfter <= cfg.ProcessTimeout {
		return nil, fmt.Errorf("stale threshold %s must exceed process timeout %s", cfg.StaleAfter, cfg.ProcessTimeout)
	}
	if cfg.RecoverBatch <= 0 {
		cfg.RecoverBatch = defaultRecoverBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	o := &Orchestrator{
		competitions:    cfg.Competitions,
		problems:        cfg.Problems,
		submissions:     cfg.Submissions,
		window:          cfg.Window,
		ledger:          cfg.Ledger,
		backend:         cfg.Backend,
		sources:         cfg.Sources,
		cache:           cfg.Cache,
		rateLimit:       cfg.RateLimit,
		sourceKeyPrefix: strings.Trim(cfg.SourceKeyPrefix, "/"),
		maxCodeBytes:    cfg.MaxCodeBytes,
		processTimeout:  cfg.ProcessTimeout,
		staleAfter:      cfg.StaleAfter,
		recoverBatch:    cfg.RecoverBatch,
		timeouts:        cfg.Timeouts,
		now:             cfg.Now,
	}
	dispatcher, err := NewDispatcher(cfg.Dispatcher, o.Process)
	if err != nil {
		return nil, err
	}
	o.dispatcher = dispatcher
	return o, nil
}

// Start launches the judging workers.
func (o *Orchestrator) Start(ctx context.Context) {
	o.dispatcher.Start(ctx)
}

// Stop stops accepting work and waits for queued submissions to finish.
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.dispatcher.Stop(ctx)
}

// BackendKind names the backend verdicts are produced by.
func (o *Orchestrator) BackendKind() backend.Kind {
	return o.backend.Kind()
}

// QueueDepth is the number of submissions waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return o.dispatcher.Pending()
}

// Submit validates the request, writes a pending submission and schedules it.
// Client errors are returned before anything is stored.
func (o *Orchestrator) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	lang, err := o.validateInput(input)
	if err != nil {
		return SubmitResult{}, err
	}
	competition, err := o.loadTarget(ctx, input.CompetitionID, input.ProblemID)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := o.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return SubmitResult{}, err
	}

	participant, window, err := o.window.EnsureActive(ctx, competition, input.UserID)
	if err != nil {
		return SubmitResult{}, err
	}

	submissionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)
	sub := &model.Submission{
		ID:            submissionID,
		CompetitionID: competition.ID,
		ProblemID:     input.ProblemID,
		ParticipantID: participant.ID,
		UserID:        input.UserID,
		Language:      lang.Name,
		SourceCode:    input.SourceCode,
		SourceHash:    hashSource(input.SourceCode),
		Status:        model.StatusPending,
		SubmittedAt:   o.now(),
	}
	if sub.SourceKey = o.archiveSource(ctx, sub); sub.SourceKey != "" {
		// the archive holds the only copy; the row keeps source_code empty
		sub.SourceCode = ""
	}

	ctxDB := withTimeout(ctx, o.timeouts.DB)
	err = o.submissions.Create(ctxDB.ctx, nil, sub)
	ctxDB.cancel()
	if err != nil {
		return SubmitResult{}, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	if err := o.dispatcher.Enqueue(ctx, submissionID); err != nil {
		logger.Warn(ctx, "enqueue submission failed", zap.Error(err))
		failed := model.FailedVerdict(queueFullMessage)
		failed.JudgedBy = string(o.backend.Kind())
		o.record(ctx, sub, failed)
		return SubmitResult{}, appErr.Wrap(err, appErr.JudgeQueueFull).WithDetail("submission_id", submissionID)
	}

	logger.Info(ctx, "submission accepted",
		zap.Int64("competition_id", sub.CompetitionID),
		zap.Int64("problem_id", sub.ProblemID),
		zap.Int64("participant_id", sub.ParticipantID),
		zap.String("language", sub.Language),
	)
	return SubmitResult{
		SubmissionID: submissionID,
		Status:       model.StatusPending,
		SubmittedAt:  sub.SubmittedAt,
		WindowEnd:    window.End,
	}, nil
}

// GetSubmission returns the current state of a submission.
func (o *Orchestrator) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, o.timeouts.DB)
	defer ctxDB.cancel()
	sub, err := o.submissions.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return sub, nil
}

// Process judges one submission to a terminal state. Every failure after the
// submission is loaded ends in a runtime_error verdict.
func (o *Orchestrator) Process(ctx context.Context, submissionID string) {
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)

	ctxDB := withTimeout(ctx, o.timeouts.DB)
	sub, err := o.submissions.GetByID(ctxDB.ctx, nil, submissionID)
	ctxDB.cancel()
	if err != nil {
		logger.Error(ctx, "load submission failed", zap.Error(err))
		return
	}
	if sub.Status.IsTerminal() {
		logger.Debug(ctx, "submission already judged", zap.String("status", string(sub.Status)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judging panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			o.fail(ctx, sub, fmt.Sprintf("internal judging error: %v", r))
		}
	}()

	ctxDB = withTimeout(ctx, o.timeouts.DB)
	started, err := o.submissions.MarkRunning(ctxDB.ctx, nil, submissionID, o.now())
	ctxDB.cancel()
	if err != nil {
		o.fail(ctx, sub, "mark submission running failed: "+err.Error())
		return
	}
	if !started {
		logger.Debug(ctx, "submission claimed by another worker")
		return
	}
	sub.Status = model.StatusRunning

	ctxDB = withTimeout(ctx, o.timeouts.DB)
	problem, err := o.problems.GetByID(ctxDB.ctx, nil, sub.ProblemID)
	ctxDB.cancel()
	if err != nil {
		o.fail(ctx, sub, "load test cases failed: "+err.Error())
		return
	}

	source, err := o.loadSource(ctx, sub)
	if err != nil {
		o.fail(ctx, sub, "load source failed: "+err.Error())
		return
	}

	req := backend.Request{
		SourceCode: source,
		Language:   sub.Language,
		Limits: backend.Limits{
			TimeLimitMs:   problem.TimeLimitMs,
			MemoryLimitKB: problem.MemoryLimitKB,
		},
	}
	for _, tc := range problem.TestCases() {
		req.TestCases = append(req.TestCases, backend.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Hidden:         tc.Hidden,
		})
	}

	ctxJudge := withTimeout(ctx, o.processTimeout)
	start := time.Now()
	outcome, err := o.backend.Execute(ctxJudge.ctx, req)
	ctxJudge.cancel()
	if err != nil {
		o.fail(ctx, sub, "judge backend error: "+err.Error())
		return
	}

	v := verdict.Reduce(problem.Points, outcome)
	logger.Info(ctx, "submission judged",
		zap.String("status", string(v.Status)),
		zap.Int("score", v.Score),
		zap.Int("passed", outcome.PassedCount),
		zap.Int("total", outcome.TotalCount),
		zap.String("backend", string(outcome.Kind)),
		zap.Duration("elapsed", time.Since(start)),
	)
	o.record(ctx, sub, v)
}

// Recover re-enqueues pending submissions older than the stale threshold and
// fails running ones that started longer ago than that, which no worker can
// still be judging since the threshold exceeds the process timeout.
// Submissions this process still holds are left alone. It returns the two counts.
func (o *Orchestrator) Recover(ctx context.Context) (int, int, error) {
	if o.cache != nil {
		ctxCache := withTimeout(ctx, o.timeouts.Cache)
		ok, err := o.cache.TryLock(ctxCache.ctx, recoverLockKey, o.staleAfter)
		ctxCache.cancel()
		if err != nil {
			return 0, 0, appErr.Wrapf(err, appErr.CacheError, "acquire recover lock failed")
		}
		if !ok {
			logger.Info(ctx, "recover sweep skipped, another instance holds the lock")
			return 0, 0, nil
		}
		defer func() {
			if err := o.cache.Unlock(context.Background(), recoverLockKey); err != nil {
				logger.Warn(ctx, "release recover lock failed", zap.Error(err))
			}
		}()
	}

	before := o.now().Add(-o.staleAfter)
	ctxDB := withTimeout(ctx, o.timeouts.DB)
	defer ctxDB.cancel()
	pending, err := o.submissions.ListStale(ctxDB.ctx, nil, model.StatusPending, before, o.recoverBatch)
	if err != nil {
		return 0, 0, appErr.Wrapf(err, appErr.DatabaseError, "list stale pending submissions failed")
	}
	running, err := o.submissions.ListStale(ctxDB.ctx, nil, model.StatusRunning, before, o.recoverBatch)
	if err != nil {
		return 0, 0, appErr.Wrapf(err, appErr.DatabaseError, "list stale running submissions failed")
	}
	return o.recoverRows(ctx, pending, running)
}

func (o *Orchestrator) recoverRows(ctx context.Context, pending, running []*model.Submission) (int, int, error) {
	requeued, failed, skipped := 0, 0, 0
	for _, sub := range pending {
		if o.dispatcher.Tracked(sub.ID) {
			skipped++
			continue
		}
		if err := o.dispatcher.Enqueue(ctx, sub.ID); err != nil {
			logger.Warn(ctx, "requeue stale submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
			break
		}
		requeued++
	}
	for _, sub := range running {
		if o.dispatcher.Tracked(sub.ID) {
			skipped++
			continue
		}
		subCtx := context.WithValue(ctx, contextkey.SubmissionID, sub.ID)
		o.fail(subCtx, sub, interruptedMessage)
		failed++
	}
	if requeued > 0 || failed > 0 {
		logger.Info(ctx, "recovered stale submissions",
			zap.Int("requeued", requeued),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
		)
	}
	return requeued, failed, nil
}

func (o *Orchestrator) validateInput(input SubmitInput) (backend.Language, error) {
	if input.CompetitionID <= 0 {
		return backend.Language{}, appErr.ValidationError("competition_id", "required")
	}
	if input.ProblemID <= 0 {
		return backend.Language{}, appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return backend.Language{}, appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return backend.Language{}, appErr.ValidationError("language", "required")
	}
	lang, ok := backend.LookupLanguage(input.Language)
	if !ok {
		return backend.Language{}, appErr.New(appErr.LanguageNotSupported).
			WithDetail("language", input.Language).
			WithDetail("supported", backend.SupportedLanguages())
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return backend.Language{}, appErr.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > o.maxCodeBytes {
		return backend.Language{}, appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", o.maxCodeBytes)
	}
	return lang, nil
}

func (o *Orchestrator) loadTarget(ctx context.Context, competitionID, problemID int64) (*model.Competition, error) {
	ctxDB := withTimeout(ctx, o.timeouts.DB)
	defer ctxDB.cancel()

	competition, err := o.competitions.GetByID(ctxDB.ctx, nil, competitionID)
	if err != nil {
		if errors.Is(err, repository.ErrCompetitionNotFound) {
			return nil, appErr.New(appErr.ContestNotFound).WithDetail("competition_id", competitionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get competition failed")
	}
	if competition.IsDeleted {
		return nil, appErr.New(appErr.ContestNotFound).WithDetail("competition_id", competitionID)
	}
	switch competition.Status {
	case model.CompetitionUpcoming:
		return nil, appErr.New(appErr.ContestNotStarted)
	case model.CompetitionEnded:
		return nil, appErr.New(appErr.ContestEnded)
	}

	problem, err := o.problems.GetByID(ctxDB.ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	if problem.IsDeleted {
		return nil, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
	}
	if problem.CompetitionID != competition.ID {
		return nil, appErr.New(appErr.ProblemNotSubmittable).
			WithDetail("problem_id", problemID).
			WithDetail("competition_id", competitionID)
	}
	return competition, nil
}

// checkRateLimit fails open when Redis is unreachable.
func (o *Orchestrator) checkRateLimit(ctx context.Context, userID int64, clientIP string) error {
	if o.cache == nil || o.rateLimit.Window <= 0 {
		return nil
	}
	ctxCache := withTimeout(ctx, o.timeouts.Cache)
	defer ctxCache.cancel()

	if o.rateLimit.UserMax > 0 {
		if err := o.checkRateCounter(ctxCache.ctx, rateUserKeyPrefix+strconv.FormatInt(userID, 10), o.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if o.rateLimit.IPMax > 0 && clientIP != "" {
		if err := o.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, o.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := o.cache.Incr(ctx, key)
	if err != nil {
		logger.Warn(ctx, "rate limit check failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if count == 1 {
		if err := o.cache.Expire(ctx, key, o.rateLimit.Window); err != nil {
			// a counter without a TTL would throttle forever
			logger.Warn(ctx, "set rate limit window failed", zap.String("key", key), zap.Error(err))
			if err := o.cache.Del(ctx, key); err != nil {
				logger.Warn(ctx, "drop rate limit counter failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithDetail("retry_within", o.rateLimit.Window.String())
	}
	return nil
}

// archiveSource stores compressed source in object storage and returns its key.
// It returns "" when archiving is off or fails, and the row keeps the source.
func (o *Orchestrator) archiveSource(ctx context.Context, sub *model.Submission) string {
	if o.sources == nil {
		return ""
	}
	key := fmt.Sprintf("%s/%s/%s.zst", o.sourceKeyPrefix, strconv.FormatInt(sub.CompetitionID, 10), sub.ID)
	ctxStorage := withTimeout(ctx, o.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := o.sources.Put(ctxStorage.ctx, key, []byte(sub.SourceCode)); err != nil {
		logger.Warn(ctx, "archive source failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return key
}

func (o *Orchestrator) loadSource(ctx context.Context, sub *model.Submission) (string, error) {
	if sub.SourceCode != "" || sub.SourceKey == "" {
		return sub.SourceCode, nil
	}
	if o.sources == nil {
		return "", fmt.Errorf("source archived at %s but object storage is not configured", sub.SourceKey)
	}
	ctxStorage := withTimeout(ctx, o.timeouts.Storage)
	defer ctxStorage.cancel()
	data, err := o.sources.Get(ctxStorage.ctx, sub.SourceKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (o *Orchestrator) fail(ctx context.Context, sub *model.Submission, message string) {
	logger.Warn(ctx, "judging failed", zap.String("reason", message))
	v := model.FailedVerdict(message)
	v.JudgedBy = string(o.backend.Kind())
	o.record(ctx, sub, v)
}

func (o *Orchestrator) record(ctx context.Context, sub *model.Submission, v model.Verdict) {
	credited, err := o.ledger.Record(ctx, sub, v)
	if err != nil {
		if appErr.Is(err, appErr.SubmissionAlreadyFinal) {
			logger.Debug(ctx, "verdict already recorded")
			return
		}
		logger.Error(ctx, "record verdict failed", zap.String("status", string(v.Status)), zap.Error(err))
		return
	}
	if credited {
		logger.Info(ctx, "participant credited",
			zap.Int64("participant_id", sub.ParticipantID),
			zap.Int64("problem_id", sub.ProblemID),
			zap.Int("score", v.Score),
		)
	}
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
