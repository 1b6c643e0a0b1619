package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"campusjudge/internal/common/cache"
	"campusjudge/internal/common/db"
	"campusjudge/internal/competition/model"
	"campusjudge/internal/competition/repository"
	"campusjudge/internal/judge/backend"
)

type fakeCompetitions struct {
	mu    sync.Mutex
	items map[int64]*model.Competition
}

func newFakeCompetitions(items ...*model.Competition) *fakeCompetitions {
	f := &fakeCompetitions{items: make(map[int64]*model.Competition)}
	for _, c := range items {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeCompetitions) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Competition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrCompetitionNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCompetitions) IncrementParticipantCount(ctx context.Context, tx db.Transaction, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return repository.ErrCompetitionNotFound
	}
	c.ParticipantCount++
	return nil
}

func (f *fakeCompetitions) count(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].ParticipantCount
}

type fakeProblems struct {
	items map[int64]*model.Problem
}

func newFakeProblems(items ...*model.Problem) *fakeProblems {
	f := &fakeProblems{items: make(map[int64]*model.Problem)}
	for _, p := range items {
		f.items[p.ID] = p
	}
	return f
}

func (f *fakeProblems) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Problem, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProblems) Invalidate(ctx context.Context, id int64) error { return nil }

type participantKey struct{ competitionID, userID int64 }

type fakeParticipants struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.Participant
	byKey  map[participantKey]int64
	// beforeCreate runs without the lock, to simulate a concurrent registration.
	beforeCreate func()
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{byID: make(map[int64]*model.Participant), byKey: make(map[participantKey]int64)}
}

func (f *fakeParticipants) put(p *model.Participant) *model.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.byID[p.ID] = &cp
	f.byKey[participantKey{p.CompetitionID, p.UserID}] = p.ID
	return p
}

func (f *fakeParticipants) get(id int64) model.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeParticipants) GetByCompetitionAndUser(ctx context.Context, tx db.Transaction, competitionID, userID int64) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byKey[participantKey{competitionID, userID}]
	if !ok {
		return nil, repository.ErrParticipantNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeParticipants) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipants) Create(ctx context.Context, tx db.Transaction, p *model.Participant) (int64, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	if _, ok := f.byKey[participantKey{p.CompetitionID, p.UserID}]; ok {
		f.mu.Unlock()
		return 0, repository.ErrDuplicate
	}
	f.mu.Unlock()
	f.put(p)
	return p.ID, nil
}

func (f *fakeParticipants) UpdateWindow(ctx context.Context, tx db.Transaction, id int64, status model.ParticipantStatus, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	p.Status = status
	p.StartTime, p.EndTime = &start, &end
	return nil
}

func (f *fakeParticipants) IncrementAttempted(ctx context.Context, tx db.Transaction, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].ProblemsAttempted++
	return nil
}

func (f *fakeParticipants) AddSolve(ctx context.Context, tx db.Transaction, id int64, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Score += score
	f.byID[id].ProblemsSolved++
	return nil
}

func (f *fakeParticipants) ListTop(ctx context.Context, tx db.Transaction, competitionID int64, limit int) ([]*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Participant
	for _, p := range f.byID {
		if p.CompetitionID == competitionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSubmissions struct {
	mu          sync.Mutex
	items       map[string]*model.Submission
	invalidated int
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{items: make(map[string]*model.Submission)}
}

func (f *fakeSubmissions) Create(ctx context.Context, tx db.Transaction, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[s.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *s
	f.items[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) MarkRunning(ctx context.Context, tx db.Transaction, id string, startedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok || s.Status != model.StatusPending {
		return false, nil
	}
	s.Status = model.StatusRunning
	s.StartedAt = &startedAt
	return true, nil
}

func (f *fakeSubmissions) Finalize(ctx context.Context, tx db.Transaction, id string, v model.Verdict, judgedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok || s.Status.IsTerminal() {
		return false, nil
	}
	s.Status = v.Status
	s.Score = v.Score
	s.ExecutionTimeMs = v.MaxExecutionTimeMs
	s.MemoryKB = v.MaxMemoryKB
	s.ErrorMessage = v.ErrorMessage
	s.JudgedBy = v.JudgedBy
	s.JudgedAt = &judgedAt
	return true, nil
}

func (f *fakeSubmissions) ListStale(ctx context.Context, tx db.Transaction, status model.SubmissionStatus, before time.Time, limit int) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	since := func(s *model.Submission) time.Time {
		if status == model.StatusRunning && s.StartedAt != nil {
			return *s.StartedAt
		}
		return s.SubmittedAt
	}
	var out []*model.Submission
	for _, s := range f.items {
		if s.Status == status && since(s).Before(before) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return since(out[i]).Before(since(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSubmissions) Invalidate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return nil
}

func (f *fakeSubmissions) get(id string) model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// fakeProgress emulates the uk_attempt and uk_solve unique keys.
type fakeProgress struct {
	mu       sync.Mutex
	attempts map[[2]int64]string
	solves   map[[2]int64]string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{attempts: make(map[[2]int64]string), solves: make(map[[2]int64]string)}
}

func (f *fakeProgress) InsertAttempt(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{participantID, problemID}
	if _, ok := f.attempts[key]; ok {
		return false, nil
	}
	f.attempts[key] = submissionID
	return true, nil
}

func (f *fakeProgress) InsertSolve(ctx context.Context, tx db.Transaction, participantID, problemID int64, submissionID string, score int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int64{participantID, problemID}
	if _, ok := f.solves[key]; ok {
		return false, nil
	}
	f.solves[key] = submissionID
	return true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.VerdictEvent
}

func (f *fakePublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) all() []model.VerdictEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.VerdictEvent(nil), f.events...)
}

type fakeBackend struct {
	kind    backend.Kind
	calls   int32
	execute func(req backend.Request) (backend.Outcome, error)
}

func (f *fakeBackend) Kind() backend.Kind { return f.kind }

func (f *fakeBackend) Execute(ctx context.Context, req backend.Request) (backend.Outcome, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.execute(req)
}

// acceptAll passes every case the way the remote judge would.
func acceptAll(req backend.Request) (backend.Outcome, error) {
	out := backend.Outcome{Kind: backend.KindRemote, TotalCount: len(req.TestCases), PassedCount: len(req.TestCases)}
	for i := range req.TestCases {
		out.Cases = append(out.Cases, backend.CaseResult{Index: i, Passed: true, Category: backend.CategoryAccepted, ExecutionTimeMs: 5})
	}
	return out, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+objectKey] = data
	return nil
}

func (m *memoryObjects) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// expireFailingCache counts like Redis but cannot set TTLs.
type expireFailingCache struct {
	cache.Cache
	mu      sync.Mutex
	deleted []string
}

func (c *expireFailingCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errors.New("expire rejected")
}

func (c *expireFailingCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	c.deleted = append(c.deleted, keys...)
	c.mu.Unlock()
	return c.Cache.Del(ctx, keys...)
}
