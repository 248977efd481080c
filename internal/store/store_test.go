package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	s.now = func() time.Time { return fixedNow }
	s.id = func() string { return "id-1" }
	return s, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrateExecutesSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS companies").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreateCompanyWithTrial(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO companies")).
		WithArgs("id-1", "Acme", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WithArgs("id-1", "trial", domain.SubscriptionTrialing, 25, fixedNow, fixedNow.Add(14*24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	company := &domain.Company{Name: "Acme"}
	if err := s.CreateCompany(context.Background(), company, Trial{Plan: "trial", Calls: 25, Length: 14 * 24 * time.Hour}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if company.ID != "id-1" || !company.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected company: %+v", company)
	}
	expectationsMet(t, mock)
}

func TestCreateCompanyRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO companies")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.CreateCompany(context.Background(), &domain.Company{Name: "Acme"}, Trial{Plan: "trial"})
	if err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := s.CreateUser(context.Background(), &domain.User{CompanyID: "c1", Email: "a@example.com"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetJobDecodesQuestions(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "company_id", "title", "description", "location", "status", "questions",
		"qualifying_score", "pathway_id", "pathway_version", "created_at", "updated_at"}).
		AddRow("j1", "c1", "Support Engineer", "desc", "Remote", "active",
			[]byte(`[{"text":"Why support?","guidance":"empathy"}]`), 75, "pw-1", "v1", fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE company_id = $1 AND id = $2")).
		WithArgs("c1", "j1").WillReturnRows(rows)

	job, err := s.GetJob(context.Background(), "c1", "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.JobActive || job.QualifyingScore != 75 || job.PathwayID != "pw-1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(job.Questions) != 1 || job.Questions[0].Guidance != "empathy" {
		t.Fatalf("unexpected questions: %+v", job.Questions)
	}
	expectationsMet(t, mock)
}

func TestGetJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	if _, err := s.GetPublicJob(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestUpdateJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET title")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateJob(context.Background(), &domain.Job{ID: "j1", CompanyID: "c1", Title: "SRE"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestIncrementCallsUsed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET calls_used = calls_used + 1")).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET calls_used = calls_used + 1")).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.IncrementCallsUsed(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IncrementCallsUsed(context.Background(), "c1"); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestReleaseCall(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET calls_used = calls_used - 1")).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ReleaseCall(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestGetSubscriptionWithoutPeriodEnd(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"company_id", "plan", "status", "calls_limit", "calls_used", "period_start", "period_end"}).
		AddRow("c1", "growth", "active", 100, 3, fixedNow, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subscriptions WHERE company_id = $1")).WithArgs("c1").WillReturnRows(rows)

	sub, err := s.GetSubscription(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Remaining() != 97 || !sub.PeriodEnd.IsZero() {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	expectationsMet(t, mock)
}

func TestGetPhoneScreenByCallID(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "company_id", "job_id", "candidate_id", "call_id", "status", "transcript",
		"recording_url", "duration_seconds", "scores", "score", "summary", "qualified", "error", "created_at", "updated_at"}).
		AddRow("s1", "c1", "j1", "cand1", "call-9", "analyzed", "hello", "https://rec", 95,
			[]byte(`[{"question":"q1","score":80}]`), 80.0, "solid", true, "", fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM phone_screens WHERE call_id = $1")).WithArgs("call-9").WillReturnRows(rows)

	ps, err := s.GetPhoneScreenByCallID(context.Background(), "call-9")
	if err != nil {
		t.Fatalf("get phone screen: %v", err)
	}
	if ps.Score == nil || *ps.Score != 80 {
		t.Fatalf("unexpected score: %v", ps.Score)
	}
	if ps.Qualified == nil || !*ps.Qualified {
		t.Fatalf("expected qualified screen")
	}
	if len(ps.Scores) != 1 || ps.Scores[0].Question != "q1" {
		t.Fatalf("unexpected scores: %+v", ps.Scores)
	}
	expectationsMet(t, mock)
}

func TestSetPhoneScreenCallIDOnlyOnce(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("UPDATE phone_screens SET call_id = $3, updated_at = $4")
	mock.ExpectExec(query).WithArgs("c1", "ps1", "call-1", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("c1", "ps1", "call-1", fixedNow).WillReturnResult(sqlmock.NewResult(0, 0))

	stored, err := s.SetPhoneScreenCallID(context.Background(), "c1", "ps1", "call-1")
	if err != nil || !stored {
		t.Fatalf("expected call id to be stored, got %v, %v", stored, err)
	}
	stored, err = s.SetPhoneScreenCallID(context.Background(), "c1", "ps1", "call-1")
	if err != nil || stored {
		t.Fatalf("expected existing call id to be kept, got %v, %v", stored, err)
	}
	expectationsMet(t, mock)
}

func TestUpdateCandidateStatusKeepsScoreWhenNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE candidates SET status = $3, score = COALESCE($4, score)")).
		WithArgs("c1", "cand1", domain.CandidateRejected, sql.NullFloat64{}, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateCandidateStatus(context.Background(), "c1", "cand1", domain.CandidateRejected, nil); err != nil {
		t.Fatalf("update candidate: %v", err)
	}
	expectationsMet(t, mock)
}
