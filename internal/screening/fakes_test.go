package screening

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phonescreen-ai/phonescreen/internal/ai/analysis"
	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
	"github.com/phonescreen-ai/phonescreen/internal/notify"
)

type memStore struct {
	mu         sync.Mutex
	seq        int
	companies  map[string]*domain.Company
	users      []domain.User
	subs       map[string]*domain.Subscription
	jobs       map[string]*domain.Job
	candidates map[string]*domain.Candidate
	screens    map[string]*domain.PhoneScreen

	failCreateScreen error
	released         int
}

func newMemStore() *memStore {
	return &memStore{
		companies:  map[string]*domain.Company{"c1": {ID: "c1", Name: "Acme"}},
		users:      []domain.User{{ID: "u1", CompanyID: "c1", Email: "recruiter@acme.test", Notify: true}},
		subs:       map[string]*domain.Subscription{"c1": {CompanyID: "c1", Status: domain.SubscriptionActive, CallsLimit: 10}},
		jobs:       map[string]*domain.Job{},
		candidates: map[string]*domain.Candidate{},
		screens:    map[string]*domain.PhoneScreen{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *memStore) addJob(j *domain.Job) *domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return j
}

func (m *memStore) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListNotifiedUsers(_ context.Context, companyID string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if u.CompanyID == companyID && u.Notify {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) GetSubscription(_ context.Context, companyID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[companyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) IncrementCallsUsed(_ context.Context, companyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.subs[companyID]
	if s == nil || s.CallsUsed >= s.CallsLimit {
		return domain.ErrQuotaExceeded
	}
	s.CallsUsed++
	return nil
}

func (m *memStore) ReleaseCall(_ context.Context, companyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.subs[companyID]; s != nil && s.CallsUsed > 0 {
		s.CallsUsed--
	}
	m.released++
	return nil
}

func (m *memStore) GetJob(_ context.Context, companyID, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) GetPublicJob(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.GetJob(ctx, j.CompanyID, id)
}

func (m *memStore) SetJobPathway(_ context.Context, jobID, pathwayID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.PathwayID = pathwayID
	j.PathwayVersion = version
	return nil
}

func (m *memStore) CreateCandidate(_ context.Context, c *domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID("cand-")
	cp := *c
	m.candidates[c.ID] = &cp
	return nil
}

func (m *memStore) GetCandidate(_ context.Context, companyID, id string) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok || c.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) UpdateCandidateStatus(_ context.Context, companyID, id string, status domain.CandidateStatus, score *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok || c.CompanyID != companyID {
		return domain.ErrNotFound
	}
	c.Status = status
	if score != nil {
		v := *score
		c.Score = &v
	}
	return nil
}

func (m *memStore) HasActiveScreen(_ context.Context, jobID, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.screens {
		c := m.candidates[s.CandidateID]
		if s.JobID == jobID && c != nil && c.Phone == phone &&
			s.Status != domain.ScreenFailed && s.Status != domain.ScreenNoAnswer {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreatePhoneScreen(_ context.Context, ps *domain.PhoneScreen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateScreen != nil {
		return m.failCreateScreen
	}
	ps.ID = m.nextID("screen-")
	cp := *ps
	m.screens[ps.ID] = &cp
	return nil
}

func (m *memStore) GetPhoneScreen(_ context.Context, companyID, id string) (*domain.PhoneScreen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[id]
	if !ok || s.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetPhoneScreenByCallID(_ context.Context, callID string) (*domain.PhoneScreen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.screens {
		if s.CallID != "" && s.CallID == callID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) UpdatePhoneScreen(_ context.Context, ps *domain.PhoneScreen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.screens[ps.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *ps
	m.screens[ps.ID] = &cp
	return nil
}

func (m *memStore) SetPhoneScreenCallID(_ context.Context, companyID, id, callID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[id]
	if !ok || s.CompanyID != companyID {
		return false, domain.ErrNotFound
	}
	if s.CallID != "" {
		return false, nil
	}
	s.CallID = callID
	return true, nil
}

func (m *memStore) screen(id string) *domain.PhoneScreen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screens[id]
}

func (m *memStore) candidate(id string) *domain.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candidates[id]
}

type fakeCaller struct {
	created  int
	updated  []bland.Pathway
	calls    []bland.CallRequest
	sendErr  error
	result   *bland.CallResult
	callSeq  int
	createID string
	// onSend runs after a call is accepted, before SendCall returns.
	onSend func(call bland.CallRequest, callID string)
}

func (f *fakeCaller) CreatePathway(context.Context, string, string) (string, error) {
	f.created++
	if f.createID == "" {
		f.createID = "pw-1"
	}
	return f.createID, nil
}

func (f *fakeCaller) UpdatePathway(_ context.Context, _ string, p bland.Pathway) error {
	f.updated = append(f.updated, p)
	return nil
}

func (f *fakeCaller) SendCall(_ context.Context, call bland.CallRequest) (string, error) {
	f.calls = append(f.calls, call)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.callSeq++
	callID := fmt.Sprintf("call-%d", f.callSeq)
	if f.onSend != nil {
		f.onSend(call, callID)
	}
	return callID, nil
}

func (f *fakeCaller) GetCall(_ context.Context, callID string) (*bland.CallResult, error) {
	if f.result == nil {
		return nil, errors.New("unknown call")
	}
	r := *f.result
	r.CallID = callID
	return &r, nil
}

type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(context.Context, *domain.Job, string) (*analysis.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

type fakeMailer struct {
	sent []notify.Message
}

func (f *fakeMailer) Send(_ context.Context, msg notify.Message) (string, error) {
	f.sent = append(f.sent, msg)
	return "email-1", nil
}

type fakeTracker struct {
	events []analytics.Event
}

func (f *fakeTracker) Capture(_ context.Context, e analytics.Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeTracker) names() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}

type fakeRecorder struct {
	placed, failed int
	webhooks       []string
	outcomes       []string
}

func (f *fakeRecorder) CallPlaced(success bool) {
	if success {
		f.placed++
		return
	}
	f.failed++
}

func (f *fakeRecorder) WebhookReceived(status string) { f.webhooks = append(f.webhooks, status) }

func (f *fakeRecorder) ScreenAnalyzed(outcome string, _ float64) {
	f.outcomes = append(f.outcomes, outcome)
}

type harness struct {
	store    *memStore
	caller   *fakeCaller
	analyzer *fakeAnalyzer
	mailer   *fakeMailer
	tracker  *fakeTracker
	recorder *fakeRecorder
	svc      *Service
}

func newHarness(cfg Config) *harness {
	h := &harness{
		store:    newMemStore(),
		caller:   &fakeCaller{},
		analyzer: &fakeAnalyzer{result: &analysis.Result{Score: 80, Qualified: true, Summary: "Good", Model: "stub"}},
		mailer:   &fakeMailer{},
		tracker:  &fakeTracker{},
		recorder: &fakeRecorder{},
	}

	svc, err := New(cfg, Deps{
		Store:    h.store,
		Caller:   h.caller,
		Analyzer: h.analyzer,
		Mailer:   h.mailer,
		Tracker:  h.tracker,
		Recorder: h.recorder,
	})
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	h.svc = svc
	return h
}

func activeJob() *domain.Job {
	return &domain.Job{
		ID:              "j1",
		CompanyID:       "c1",
		Title:           "Support Engineer",
		Status:          domain.JobActive,
		QualifyingScore: 70,
		Questions:       []domain.Question{{Text: "Why support?"}, {Text: "Hardest ticket?"}},
	}
}
