package screening

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phonescreen-ai/phonescreen/internal/ai/analysis"
	"github.com/phonescreen-ai/phonescreen/internal/analytics"
	"github.com/phonescreen-ai/phonescreen/internal/bland"
	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

func apply(t *testing.T, h *harness, phone string) *Application {
	t.Helper()

	app, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada", Phone: phone})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return app
}

func TestApplyPlacesCall(t *testing.T) {
	h := newHarness(Config{Call: bland.CallSettings{Voice: "maya", WebhookURL: "https://hooks/calls"}})
	h.store.addJob(activeJob())

	app := apply(t, h, "+1 (415) 555-0123")

	if app.Candidate.ID == "" || app.Screen == nil || app.Screen.CallID != "call-1" {
		t.Fatalf("unexpected application: %+v", app)
	}

	if h.caller.created != 1 || len(h.caller.updated) != 1 {
		t.Fatalf("expected pathway to be created and built once, got %d/%d", h.caller.created, len(h.caller.updated))
	}
	if len(h.caller.updated[0].Nodes) != 5 {
		t.Fatalf("expected 5 pathway nodes, got %d", len(h.caller.updated[0].Nodes))
	}

	call := h.caller.calls[0]
	if call.PhoneNumber != "+14155550123" || call.PathwayID != "pw-1" || call.Voice != "maya" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.Metadata[bland.MetadataScreenID] != app.Screen.ID || call.RequestData["company_name"] != "Acme" {
		t.Fatalf("unexpected call metadata: %+v", call)
	}

	stored := h.store.screen(app.Screen.ID)
	if stored.Status != domain.ScreenQueued || stored.CallID != "call-1" {
		t.Fatalf("unexpected stored screen: %+v", stored)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateScreening {
		t.Fatalf("expected candidate in screening, got %s", c.Status)
	}
	if h.store.subs["c1"].CallsUsed != 1 {
		t.Fatalf("expected one call consumed, got %d", h.store.subs["c1"].CallsUsed)
	}
	if h.recorder.placed != 1 {
		t.Fatalf("expected call metric")
	}

	names := strings.Join(h.tracker.names(), ",")
	if names != analytics.EventApplicationReceived+","+analytics.EventScreenStarted {
		t.Fatalf("unexpected events: %s", names)
	}
}

func TestApplyReusesPathwayUntilQuestionsChange(t *testing.T) {
	h := newHarness(Config{})
	job := h.store.addJob(activeJob())

	apply(t, h, "+14155550100")
	apply(t, h, "+14155550101")

	if h.caller.created != 1 || len(h.caller.updated) != 1 {
		t.Fatalf("expected pathway to be reused, got created=%d updated=%d", h.caller.created, len(h.caller.updated))
	}

	h.store.mu.Lock()
	job.Questions = append(job.Questions, domain.Question{Text: "When can you start?"})
	h.store.mu.Unlock()

	apply(t, h, "+14155550102")

	if h.caller.created != 1 || len(h.caller.updated) != 2 {
		t.Fatalf("expected pathway to be rebuilt in place, got created=%d updated=%d", h.caller.created, len(h.caller.updated))
	}
	if len(h.caller.updated[1].Nodes) != 6 {
		t.Fatalf("expected rebuilt pathway with 6 nodes, got %d", len(h.caller.updated[1].Nodes))
	}
}

func TestApplyRejectedByChecks(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		phone   string
		check   string
		wantErr error
	}{
		{
			name:    "inactive job",
			setup:   func(h *harness) { j := activeJob(); j.Status = domain.JobClosed; h.store.addJob(j) },
			phone:   "+14155550123",
			check:   "job_active",
			wantErr: domain.ErrInvalid,
		},
		{
			name:    "country not allowed",
			setup:   func(h *harness) { h.store.addJob(activeJob()) },
			phone:   "+447700900123",
			check:   "phone_number",
			wantErr: domain.ErrInvalid,
		},
		{
			name: "quota used up",
			setup: func(h *harness) {
				h.store.addJob(activeJob())
				h.store.subs["c1"].CallsUsed = 10
			},
			phone:   "+14155550123",
			check:   "call_quota",
			wantErr: domain.ErrQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{AllowedPrefixes: []string{"1"}})
			tt.setup(h)

			_, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada", Phone: tt.phone})

			var rejected *CheckError
			if !errors.As(err, &rejected) || rejected.Check != tt.check {
				t.Fatalf("expected rejection by %s, got %v", tt.check, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(h.store.candidates) != 0 || len(h.caller.calls) != 0 {
				t.Fatalf("expected nothing stored or called")
			}
			if names := h.tracker.names(); len(names) != 1 || names[0] != analytics.EventApplicationRejected {
				t.Fatalf("unexpected events: %v", names)
			}
		})
	}
}

func TestApplyRejectsDuplicatePhone(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())

	apply(t, h, "+14155550123")

	_, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada again", Phone: "+1 415 555 0123"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApplyInvalidCandidate(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())

	if _, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada", Phone: "12"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid phone, got %v", err)
	}
	if _, err := h.svc.Apply(context.Background(), "missing", &domain.Candidate{Name: "Ada", Phone: "+14155550123"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyCallFailureMarksRecordsFailed(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	h.caller.sendErr = errors.New("vendor down")

	app, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada", Phone: "+14155550123"})
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}

	screen := h.store.screen(app.Screen.ID)
	if screen.Status != domain.ScreenFailed || !strings.Contains(screen.Error, "vendor down") {
		t.Fatalf("expected failed screen with error, got %+v", screen)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateFailed {
		t.Fatalf("expected failed candidate, got %s", c.Status)
	}
	if h.store.subs["c1"].CallsUsed != 0 || h.store.released != 1 {
		t.Fatalf("expected reserved call to be released")
	}
	if h.recorder.failed != 1 {
		t.Fatalf("expected failed call metric")
	}
}

func TestApplyScreenStoreFailure(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	h.store.failCreateScreen = errors.New("db down")

	app, err := h.svc.Apply(context.Background(), "j1", &domain.Candidate{Name: "Ada", Phone: "+14155550123"})
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateFailed {
		t.Fatalf("expected failed candidate, got %s", c.Status)
	}
}

func TestHandleCallWebhookAnalyzes(t *testing.T) {
	h := newHarness(Config{DashboardURL: "https://app.test/"})
	h.store.addJob(activeJob())
	h.analyzer.result = &analysis.Result{
		Scores:    []domain.QuestionScore{{Question: "Why support?", Score: 90}, {Question: "Hardest ticket?", Score: 70}},
		Score:     80,
		Qualified: true,
		Summary:   "Good fit",
	}

	app := apply(t, h, "+14155550123")

	screen, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{
		CallID:       "call-1",
		Status:       "completed",
		Completed:    true,
		Transcript:   "assistant: hi\nuser: hello",
		RecordingURL: "https://rec/1.mp3",
		Duration:     3 * time.Minute,
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	if screen.Status != domain.ScreenAnalyzed || screen.Score == nil || *screen.Score != 80 || !*screen.Qualified {
		t.Fatalf("unexpected screen: %+v", screen)
	}
	stored := h.store.screen(app.Screen.ID)
	if stored.Status != domain.ScreenAnalyzed || stored.DurationSeconds != 180 || len(stored.Scores) != 2 {
		t.Fatalf("unexpected stored screen: %+v", stored)
	}

	c := h.store.candidate(app.Candidate.ID)
	if c.Status != domain.CandidateQualified || c.Score == nil || *c.Score != 80 {
		t.Fatalf("unexpected candidate: %+v", c)
	}

	if len(h.mailer.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.mailer.sent))
	}
	msg := h.mailer.sent[0]
	if msg.To[0] != "recruiter@acme.test" || !strings.Contains(msg.Text, "https://app.test/phone-screens/"+app.Screen.ID) {
		t.Fatalf("unexpected notification: %+v", msg)
	}
	if !strings.Contains(msg.Subject, "Ada") {
		t.Fatalf("expected candidate name in subject: %q", msg.Subject)
	}

	if len(h.recorder.outcomes) != 1 || h.recorder.outcomes[0] != "qualified" {
		t.Fatalf("unexpected analysis metrics: %v", h.recorder.outcomes)
	}
}

func TestHandleCallWebhookIsIdempotent(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	apply(t, h, "+14155550123")

	result := &bland.CallResult{CallID: "call-1", Completed: true, Transcript: "user: hi"}

	if _, err := h.svc.HandleCallWebhook(context.Background(), result); err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	screen, err := h.svc.HandleCallWebhook(context.Background(), result)
	if err != nil {
		t.Fatalf("second webhook: %v", err)
	}

	if screen.Status != domain.ScreenAnalyzed {
		t.Fatalf("unexpected status %s", screen.Status)
	}
	if h.analyzer.calls != 1 || len(h.mailer.sent) != 1 {
		t.Fatalf("expected a single analysis and notification, got %d/%d", h.analyzer.calls, len(h.mailer.sent))
	}
	if h.recorder.webhooks[1] != "duplicate" {
		t.Fatalf("expected duplicate webhook metric, got %v", h.recorder.webhooks)
	}
}

func TestHandleCallWebhookNoAnswer(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	app := apply(t, h, "+14155550123")

	screen, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{CallID: "call-1", Status: "no-answer"})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	if screen.Status != domain.ScreenNoAnswer || screen.Error != noAnswerReason {
		t.Fatalf("unexpected screen: %+v", screen)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateFailed {
		t.Fatalf("expected failed candidate, got %s", c.Status)
	}
	if h.analyzer.calls != 0 {
		t.Fatalf("expected no analysis")
	}
	if len(h.mailer.sent) != 1 || !strings.HasPrefix(h.mailer.sent[0].Subject, "No answer") {
		t.Fatalf("expected no answer notification, got %+v", h.mailer.sent)
	}

	// A missed call can be retried.
	again, err := h.svc.Rescreen(context.Background(), "c1", app.Candidate.ID)
	if err != nil {
		t.Fatalf("rescreen: %v", err)
	}
	if again.Screen.CallID != "call-2" {
		t.Fatalf("unexpected rescreen call id %q", again.Screen.CallID)
	}
}

func TestHandleCallWebhookInProgress(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	apply(t, h, "+14155550123")

	screen, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{CallID: "call-1", Status: "in-progress"})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if screen.Status != domain.ScreenInProgress || len(h.mailer.sent) != 0 {
		t.Fatalf("unexpected screen %+v", screen)
	}
}

func TestHandleCallWebhookFallsBackToMetadata(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	app := apply(t, h, "+14155550123")

	// Simulate a webhook arriving before the call id was stored.
	h.store.mu.Lock()
	h.store.screens[app.Screen.ID].CallID = ""
	h.store.mu.Unlock()

	screen, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{
		CallID:     "call-1",
		Completed:  true,
		Transcript: "user: hi",
		Metadata:   map[string]string{bland.MetadataScreenID: app.Screen.ID, "company_id": "c1"},
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if screen.ID != app.Screen.ID || screen.CallID != "call-1" {
		t.Fatalf("unexpected screen %+v", screen)
	}
}

func TestApplyKeepsScreenResolvedByEarlyWebhook(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	h.caller.onSend = func(call bland.CallRequest, callID string) {
		_, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{
			CallID:     callID,
			Completed:  true,
			Transcript: "user: hi",
			Metadata:   call.Metadata,
		})
		if err != nil {
			t.Errorf("handle webhook: %v", err)
		}
	}

	app := apply(t, h, "+14155550123")

	stored := h.store.screen(app.Screen.ID)
	if stored.Status != domain.ScreenAnalyzed || stored.Transcript != "user: hi" || stored.CallID != "call-1" {
		t.Fatalf("early webhook result was overwritten: %+v", stored)
	}
	if app.Screen.Status != domain.ScreenAnalyzed {
		t.Fatalf("expected application to carry the analyzed screen, got %s", app.Screen.Status)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateQualified {
		t.Fatalf("expected candidate to stay qualified, got %s", c.Status)
	}
}

func TestHandleCallWebhookUnknownCall(t *testing.T) {
	h := newHarness(Config{})
	if _, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{CallID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnalysisFailureAndReanalyze(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	app := apply(t, h, "+14155550123")

	h.analyzer.err = errors.New("llm down")
	screen, err := h.svc.HandleCallWebhook(context.Background(), &bland.CallResult{CallID: "call-1", Completed: true, Transcript: "user: hi"})
	if err != nil {
		t.Fatalf("expected webhook to be acknowledged, got %v", err)
	}
	if screen.Status != domain.ScreenFailed || !strings.Contains(screen.Error, "llm down") {
		t.Fatalf("expected failed screen, got %+v", screen)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateFailed {
		t.Fatalf("expected failed candidate, got %s", c.Status)
	}

	h.analyzer.err = nil
	h.analyzer.result = &analysis.Result{Score: 40, Qualified: false}

	screen, err = h.svc.Reanalyze(context.Background(), "c1", app.Screen.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if screen.Status != domain.ScreenAnalyzed || screen.Error != "" || *screen.Score != 40 {
		t.Fatalf("unexpected screen after reanalyze: %+v", screen)
	}
	if c := h.store.candidate(app.Candidate.ID); c.Status != domain.CandidateRejected {
		t.Fatalf("expected rejected candidate, got %s", c.Status)
	}
}

func TestReanalyzeWithoutTranscript(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	app := apply(t, h, "+14155550123")

	if _, err := h.svc.Reanalyze(context.Background(), "c1", app.Screen.ID); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := h.svc.Reanalyze(context.Background(), "other", app.Screen.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}
}

func TestRefreshPullsCallState(t *testing.T) {
	h := newHarness(Config{})
	h.store.addJob(activeJob())
	app := apply(t, h, "+14155550123")

	h.caller.result = &bland.CallResult{Completed: true, Status: "completed", Transcript: "user: hi"}

	screen, err := h.svc.Refresh(context.Background(), "c1", app.Screen.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if screen.Status != domain.ScreenAnalyzed {
		t.Fatalf("unexpected status %s", screen.Status)
	}
}

func TestChecksDescribe(t *testing.T) {
	checks := DefaultChecks([]string{"+1", " 44 "})
	DisableByName(checks, "call_quota", "unlimited plan")

	statuses := Describe(checks)
	if len(statuses) != 4 {
		t.Fatalf("expected 4 statuses, got %d", len(statuses))
	}
	if statuses[1].Details["allowed_prefixes"] != "+1,+44" {
		t.Fatalf("unexpected prefixes: %v", statuses[1].Details)
	}
	if statuses[2].Name != "call_quota" || statuses[2].Enabled {
		t.Fatalf("expected call_quota disabled, got %+v", statuses[2])
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New(Config{}, Deps{Store: newMemStore()}); err == nil {
		t.Fatal("expected error without caller")
	}
	if _, err := New(Config{}, Deps{Store: newMemStore(), Caller: &fakeCaller{}}); err == nil {
		t.Fatal("expected error without analyzer")
	}
}
