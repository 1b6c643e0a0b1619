package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/storage"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/judge/backend"
	"campusjudge/internal/testutil"
	appErr "campusjudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type orchestratorFixture struct {
	orch         *Orchestrator
	submissions  *fakeSubmissions
	participants *fakeParticipants
	publisher    *fakePublisher
	backend      *fakeBackend
	clock        *fixedClock
}

func newOrchestratorFixture(t *testing.T, be *fakeBackend, dispatcher DispatcherConfig, opts ...func(*OrchestratorConfig)) *orchestratorFixture {
	t.Helper()
	clock := &fixedClock{now: baseTime}
	competitions := newFakeCompetitions(
		&model.Competition{ID: 1, Status: model.CompetitionOngoing, DurationMinutes: 120, Capacity: 100},
		&model.Competition{ID: 2, Status: model.CompetitionEnded, DurationMinutes: 60},
		&model.Competition{ID: 3, Status: model.CompetitionOngoing, DurationMinutes: 60, IsDeleted: true},
	)
	problems := newFakeProblems(
		&model.Problem{
			ID: 10, CompetitionID: 1, Points: 100, TimeLimitMs: 1000, MemoryLimitKB: 65536,
			Visible: []model.TestCase{{Input: "1", ExpectedOutput: "1"}, {Input: "2", ExpectedOutput: "4"}},
			Hidden:  []model.TestCase{{Input: "3", ExpectedOutput: "9"}, {Input: "4", ExpectedOutput: "16"}},
		},
		&model.Problem{ID: 11, CompetitionID: 1, Points: 50, IsDeleted: true},
		&model.Problem{ID: 20, CompetitionID: 2, Points: 50},
		&model.Problem{ID: 12, CompetitionID: 1, Points: 30},
	)
	f := &orchestratorFixture{
		submissions:  newFakeSubmissions(),
		participants: newFakeParticipants(),
		publisher:    &fakePublisher{},
		backend:      be,
		clock:        clock,
	}
	window, err := NewWindowManager(WindowConfig{Competitions: competitions, Participants: f.participants, Now: clock.Now})
	testutil.AssertNoError(t, err)
	ledger, err := NewLedger(LedgerConfig{
		Submissions:  f.submissions,
		Participants: f.participants,
		Progress:     newFakeProgress(),
		Publisher:    f.publisher,
		Now:          clock.Now,
	})
	testutil.AssertNoError(t, err)
	cfg := OrchestratorConfig{
		Competitions:   competitions,
		Problems:       problems,
		Submissions:    f.submissions,
		Window:         window,
		Ledger:         ledger,
		Backend:        be,
		Dispatcher:     dispatcher,
		MaxCodeBytes:   1024,
		ProcessTimeout: 30 * time.Second,
		StaleAfter:     time.Minute,
		Now:            clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.orch, err = NewOrchestrator(cfg)
	testutil.AssertNoError(t, err)
	return f
}

// drainQueue empties the dispatch queue without judging, leaving rows the way
// a crashed process would.
func (f *orchestratorFixture) drainQueue() {
	for f.orch.QueueDepth() > 0 {
		f.orch.dispatcher.release(<-f.orch.dispatcher.tasks)
	}
}

func validInput() SubmitInput {
	return SubmitInput{CompetitionID: 1, ProblemID: 10, UserID: 77, Language: "python3", SourceCode: "print(int(input())**2)"}
}

func TestSubmitThenProcessTimeLimitScenario(t *testing.T) {
	be := &fakeBackend{kind: backend.KindRemote, execute: func(req backend.Request) (backend.Outcome, error) {
		if len(req.TestCases) != 4 || !req.TestCases[2].Hidden || req.Limits.TimeLimitMs != 1000 {
			t.Errorf("unexpected request %+v", req)
		}
		return backend.Outcome{
			Kind: backend.KindRemote, TotalCount: 4, PassedCount: 3,
			Cases: []backend.CaseResult{
				{Index: 0, Passed: true, Category: backend.CategoryAccepted, ExecutionTimeMs: 40, MemoryKB: 900},
				{Index: 1, Passed: true, Category: backend.CategoryAccepted, ExecutionTimeMs: 35, MemoryKB: 950},
				{Index: 2, Hidden: true, Category: backend.CategoryTimeLimitExceeded, ExecutionTimeMs: 1000, MemoryKB: 800, Message: "Time Limit Exceeded"},
				{Index: 3, Hidden: true, Passed: true, Category: backend.CategoryAccepted, ExecutionTimeMs: 50, MemoryKB: 1000},
			},
		}, nil
	}}
	f := newOrchestratorFixture(t, be, DispatcherConfig{Workers: 1, QueueSize: 8})
	ctx := context.Background()

	res, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Status, model.StatusPending)
	testutil.AssertEqual(t, res.SubmittedAt, baseTime)
	testutil.AssertEqual(t, res.WindowEnd, baseTime.Add(2*time.Hour))
	testutil.AssertEqual(t, f.submissions.get(res.SubmissionID).Language, "python")

	f.orch.Start(ctx)
	testutil.AssertNoError(t, f.orch.Stop(ctx))

	sub, err := f.orch.GetSubmission(ctx, res.SubmissionID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sub.Status, model.StatusTimeLimitExceeded)
	testutil.AssertEqual(t, sub.Score, 75)
	testutil.AssertEqual(t, sub.ExecutionTimeMs, 1000)
	testutil.AssertEqual(t, sub.MemoryKB, 1000)
	testutil.AssertEqual(t, sub.JudgedBy, "remote")
	testutil.AssertTrue(t, sub.JudgedAt != nil, "judged_at must be set")

	p := f.participants.get(sub.ParticipantID)
	testutil.AssertEqual(t, p.Score, 0)
	testutil.AssertEqual(t, p.ProblemsAttempted, 1)
	testutil.AssertEqual(t, p.ProblemsSolved, 0)
}

func TestProcessCreditsAcceptedOnce(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{Workers: 1, QueueSize: 8})
	ctx := context.Background()

	first, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	second, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)

	f.orch.Process(ctx, first.SubmissionID)
	f.orch.Process(ctx, second.SubmissionID)

	a := f.submissions.get(first.SubmissionID)
	b := f.submissions.get(second.SubmissionID)
	testutil.AssertEqual(t, a.Status, model.StatusAccepted)
	testutil.AssertEqual(t, b.Status, model.StatusAccepted)
	testutil.AssertEqual(t, a.Score, 100)

	p := f.participants.get(a.ParticipantID)
	testutil.AssertEqual(t, p.Score, 100)
	testutil.AssertEqual(t, p.ProblemsSolved, 1)
	testutil.AssertEqual(t, p.ProblemsAttempted, 1)
}

func TestProcessIsIdempotent(t *testing.T) {
	be := &fakeBackend{kind: backend.KindRemote, execute: acceptAll}
	f := newOrchestratorFixture(t, be, DispatcherConfig{Workers: 1, QueueSize: 8})
	ctx := context.Background()

	res, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.orch.Process(ctx, res.SubmissionID)
	f.orch.Process(ctx, res.SubmissionID)

	testutil.AssertEqual(t, be.calls, int32(1))
	testutil.AssertEqual(t, len(f.publisher.all()), 1)
}

func TestSubmitClientErrorsStoreNothing(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindLocal, execute: acceptAll}, DispatcherConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *SubmitInput)
		code   appErr.ErrorCode
	}{
		{"unsupported language", func(in *SubmitInput) { in.Language = "brainfuck" }, appErr.LanguageNotSupported},
		{"empty source", func(in *SubmitInput) { in.SourceCode = "   " }, appErr.ValidationFailed},
		{"source too large", func(in *SubmitInput) { in.SourceCode = strings.Repeat("x", 2048) }, appErr.CodeTooLarge},
		{"missing user", func(in *SubmitInput) { in.UserID = 0 }, appErr.ValidationFailed},
		{"unknown competition", func(in *SubmitInput) { in.CompetitionID = 99 }, appErr.ContestNotFound},
		{"deleted competition", func(in *SubmitInput) { in.CompetitionID = 3 }, appErr.ContestNotFound},
		{"ended competition", func(in *SubmitInput) { in.CompetitionID, in.ProblemID = 2, 20 }, appErr.ContestEnded},
		{"unknown problem", func(in *SubmitInput) { in.ProblemID = 404 }, appErr.ProblemNotFound},
		{"deleted problem", func(in *SubmitInput) { in.ProblemID = 11 }, appErr.ProblemNotFound},
		{"problem of another competition", func(in *SubmitInput) { in.ProblemID = 20 }, appErr.ProblemNotSubmittable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := f.orch.Submit(ctx, in)
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
	testutil.AssertEqual(t, f.submissions.count(), 0)
}

func TestSubmitQueueFullRecordsRuntimeError(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll},
		DispatcherConfig{Workers: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)

	_, err = f.orch.Submit(ctx, validInput())
	testutil.AssertErrorCode(t, err, appErr.JudgeQueueFull)

	var failed *model.Submission
	for _, id := range f.submissionIDs() {
		s := f.submissions.get(id)
		if s.Status == model.StatusRuntimeError {
			failed = &s
		}
	}
	if failed == nil {
		t.Fatalf("expected the rejected submission to be recorded as runtime_error")
	}
	testutil.AssertEqual(t, failed.ErrorMessage, queueFullMessage)
}

func (f *orchestratorFixture) submissionIDs() []string {
	f.submissions.mu.Lock()
	defer f.submissions.mu.Unlock()
	ids := make([]string, 0, len(f.submissions.items))
	for id := range f.submissions.items {
		ids = append(ids, id)
	}
	return ids
}

func TestProcessBackendFailuresEndAsRuntimeError(t *testing.T) {
	tests := []struct {
		name    string
		execute func(req backend.Request) (backend.Outcome, error)
		message string
	}{
		{
			name: "error",
			execute: func(req backend.Request) (backend.Outcome, error) {
				return backend.Outcome{}, context.DeadlineExceeded
			},
			message: "judge backend error",
		},
		{
			name: "panic",
			execute: func(req backend.Request) (backend.Outcome, error) {
				panic("decoder exploded")
			},
			message: "internal judging error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindLocal, execute: tt.execute}, DispatcherConfig{QueueSize: 4})
			ctx := context.Background()
			res, err := f.orch.Submit(ctx, validInput())
			testutil.AssertNoError(t, err)

			f.orch.Process(ctx, res.SubmissionID)

			sub := f.submissions.get(res.SubmissionID)
			testutil.AssertEqual(t, sub.Status, model.StatusRuntimeError)
			testutil.AssertEqual(t, sub.JudgedBy, "local")
			testutil.AssertTrue(t, strings.HasPrefix(sub.ErrorMessage, tt.message), sub.ErrorMessage)
		})
	}
}

func TestProcessProblemWithoutCasesStillJudged(t *testing.T) {
	var seen int
	be := &fakeBackend{kind: backend.KindRemote, execute: func(req backend.Request) (backend.Outcome, error) {
		seen = len(req.TestCases)
		return acceptAll(req)
	}}
	f := newOrchestratorFixture(t, be, DispatcherConfig{QueueSize: 4})
	ctx := context.Background()
	in := validInput()
	in.ProblemID = 12
	res, err := f.orch.Submit(ctx, in)
	testutil.AssertNoError(t, err)

	f.orch.Process(ctx, res.SubmissionID)

	testutil.AssertEqual(t, seen, 1)
	testutil.AssertEqual(t, f.submissions.get(res.SubmissionID).Score, 30)
}

func TestRecoverRequeuesPendingAndFailsRunning(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{Workers: 1, QueueSize: 8})
	ctx := context.Background()

	stalePending, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	staleRunning, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	ok, err := f.submissions.MarkRunning(ctx, nil, staleRunning.SubmissionID, baseTime)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ok, "mark running")
	f.drainQueue()

	f.clock.Advance(5 * time.Minute)
	fresh, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.drainQueue()

	requeued, failed, err := f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, requeued, 1)
	testutil.AssertEqual(t, failed, 1)

	f.orch.Start(ctx)
	testutil.AssertNoError(t, f.orch.Stop(ctx))

	testutil.AssertEqual(t, f.submissions.get(stalePending.SubmissionID).Status, model.StatusAccepted)
	running := f.submissions.get(staleRunning.SubmissionID)
	testutil.AssertEqual(t, running.Status, model.StatusRuntimeError)
	testutil.AssertEqual(t, running.ErrorMessage, interruptedMessage)
	testutil.AssertEqual(t, f.submissions.get(fresh.SubmissionID).Status, model.StatusPending)
}

func TestGetSubmissionNotFound(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{})
	_, err := f.orch.GetSubmission(context.Background(), "missing")
	testutil.AssertErrorCode(t, err, appErr.SubmissionNotFound)
	_, err = f.orch.GetSubmission(context.Background(), "")
	testutil.AssertErrorCode(t, err, appErr.ValidationFailed)
}

func newTestRedis(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	testutil.AssertNoError(t, err)
	return c, mr
}

func TestSubmitRateLimitedPerUser(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 8},
		func(cfg *OrchestratorConfig) {
			cfg.Cache = redisCache
			cfg.RateLimit = RateLimitConfig{UserMax: 2, Window: time.Minute}
		})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.orch.Submit(ctx, validInput())
		testutil.AssertNoError(t, err)
	}
	_, err := f.orch.Submit(ctx, validInput())
	testutil.AssertErrorCode(t, err, appErr.SubmitTooFrequently)
	testutil.AssertEqual(t, f.submissions.count(), 2)

	other := validInput()
	other.UserID = 78
	_, err = f.orch.Submit(ctx, other)
	testutil.AssertNoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
}

func TestSubmitRateLimitFailsOpen(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	mr.Close()
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 8},
		func(cfg *OrchestratorConfig) {
			cfg.Cache = redisCache
			cfg.RateLimit = RateLimitConfig{UserMax: 1, Window: time.Minute}
		})

	_, err := f.orch.Submit(context.Background(), validInput())
	testutil.AssertNoError(t, err)
}

func TestRecoverSkipsWhenLockHeld(t *testing.T) {
	redisCache, _ := newTestRedis(t)
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 8},
		func(cfg *OrchestratorConfig) { cfg.Cache = redisCache })
	ctx := context.Background()

	res, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.drainQueue()
	f.clock.Advance(time.Hour)

	held, err := redisCache.TryLock(ctx, recoverLockKey, time.Minute)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, held, "test should hold the recover lock")

	requeued, failed, err := f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, requeued, 0)
	testutil.AssertEqual(t, failed, 0)

	testutil.AssertNoError(t, redisCache.Unlock(ctx, recoverLockKey))
	requeued, _, err = f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, requeued, 1)
	testutil.AssertEqual(t, f.orch.QueueDepth(), 1)
	testutil.AssertEqual(t, f.submissions.get(res.SubmissionID).Status, model.StatusPending)
}

func TestRecoverLeavesSubmissionBeingJudged(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	be := &fakeBackend{kind: backend.KindRemote, execute: func(req backend.Request) (backend.Outcome, error) {
		close(entered)
		<-release
		return acceptAll(req)
	}}
	f := newOrchestratorFixture(t, be, DispatcherConfig{QueueSize: 4})
	ctx := context.Background()

	res, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.drainQueue()
	// waited in the queue past the stale threshold before a worker picked it up
	f.clock.Advance(2 * time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orch.Process(ctx, res.SubmissionID)
	}()
	<-entered

	requeued, failed, err := f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, requeued, 0)
	testutil.AssertEqual(t, failed, 0)

	close(release)
	<-done
	sub := f.submissions.get(res.SubmissionID)
	testutil.AssertEqual(t, sub.Status, model.StatusAccepted)
	testutil.AssertEqual(t, sub.Score, 100)
	testutil.AssertEqual(t, f.participants.get(sub.ParticipantID).Score, 100)
}

func TestRecoverFailsRunningPastStaleThreshold(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 4})
	ctx := context.Background()

	res, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.drainQueue()
	f.clock.Advance(10 * time.Minute)
	ok, err := f.submissions.MarkRunning(ctx, nil, res.SubmissionID, f.clock.Now())
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ok, "mark running")

	f.clock.Advance(30 * time.Second)
	_, failed, err := f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, failed, 0)

	f.clock.Advance(time.Minute)
	_, failed, err = f.orch.Recover(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, failed, 1)
	testutil.AssertEqual(t, f.submissions.get(res.SubmissionID).Status, model.StatusRuntimeError)
}

func TestRecoverSkipsSubmissionStillQueued(t *testing.T) {
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 2})
	ctx := context.Background()

	queued, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	f.clock.Advance(time.Hour)

	for i := 0; i < 3; i++ {
		requeued, _, err := f.orch.Recover(ctx)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, requeued, 0)
	}
	testutil.AssertEqual(t, f.orch.QueueDepth(), 1)

	_, err = f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, f.orch.QueueDepth(), 2)
	testutil.AssertEqual(t, f.submissions.get(queued.SubmissionID).Status, model.StatusPending)
}

func TestNewOrchestratorRejectsStaleWithinProcessTimeout(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{
		Competitions:   newFakeCompetitions(),
		Problems:       newFakeProblems(),
		Submissions:    newFakeSubmissions(),
		Window:         &WindowManager{},
		Ledger:         &Ledger{},
		Backend:        &fakeBackend{kind: backend.KindRemote, execute: acceptAll},
		ProcessTimeout: 5 * time.Minute,
		StaleAfter:     time.Minute,
	})
	testutil.AssertTrue(t, err != nil, "stale threshold below the process timeout must be rejected")
}

func TestSubmitReadsArchivedSource(t *testing.T) {
	blobs, err := storage.NewZstdBlobs(newMemoryObjects(), "sources")
	testutil.AssertNoError(t, err)
	var judged string
	be := &fakeBackend{kind: backend.KindRemote, execute: func(req backend.Request) (backend.Outcome, error) {
		judged = req.SourceCode
		return acceptAll(req)
	}}
	f := newOrchestratorFixture(t, be, DispatcherConfig{QueueSize: 4},
		func(cfg *OrchestratorConfig) { cfg.Sources = blobs })
	ctx := context.Background()

	in := validInput()
	res, err := f.orch.Submit(ctx, in)
	testutil.AssertNoError(t, err)
	stored := f.submissions.get(res.SubmissionID)
	testutil.AssertEqual(t, stored.SourceCode, "")
	testutil.AssertTrue(t, strings.HasSuffix(stored.SourceKey, res.SubmissionID+".zst"), stored.SourceKey)

	f.orch.Process(ctx, res.SubmissionID)
	testutil.AssertEqual(t, judged, in.SourceCode)
	testutil.AssertEqual(t, f.submissions.get(res.SubmissionID).Status, model.StatusAccepted)
}

func TestSubmitRateLimitIgnoresRejectedTargets(t *testing.T) {
	redisCache, _ := newTestRedis(t)
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 8},
		func(cfg *OrchestratorConfig) {
			cfg.Cache = redisCache
			cfg.RateLimit = RateLimitConfig{UserMax: 1, Window: time.Minute}
		})
	ctx := context.Background()

	missing := validInput()
	missing.ProblemID = 404
	for i := 0; i < 3; i++ {
		_, err := f.orch.Submit(ctx, missing)
		testutil.AssertErrorCode(t, err, appErr.ProblemNotFound)
	}
	_, err := f.orch.Submit(ctx, validInput())
	testutil.AssertNoError(t, err)
}

func TestSubmitRateLimitDropsCounterWithoutWindow(t *testing.T) {
	redisCache, mr := newTestRedis(t)
	failing := &expireFailingCache{Cache: redisCache}
	f := newOrchestratorFixture(t, &fakeBackend{kind: backend.KindRemote, execute: acceptAll}, DispatcherConfig{QueueSize: 8},
		func(cfg *OrchestratorConfig) {
			cfg.Cache = failing
			cfg.RateLimit = RateLimitConfig{UserMax: 1, Window: time.Minute}
		})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.orch.Submit(ctx, validInput())
		testutil.AssertNoError(t, err)
	}
	testutil.AssertTrue(t, !mr.Exists(rateUserKeyPrefix+"77"), "counter without a ttl must not be kept")
	failing.mu.Lock()
	defer failing.mu.Unlock()
	testutil.AssertEqual(t, len(failing.deleted), 3)
}
