package bland

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(zap.NewNop(), "test-key")
	c.APIURL = srv.URL
	return c
}

func TestBuildPathwayLinearGraph(t *testing.T) {
	job := &domain.Job{
		ID:    "j1",
		Title: "Support Engineer",
		Questions: []domain.Question{
			{Text: "Tell me about a hard ticket."},
			{Text: "Which tools do you use?"},
		},
	}

	p := BuildPathway(PathwayConfig{}, job)

	wantIDs := []string{NodeStart, NodeConfirmReady, "question_1", "question_2", NodeEnd}
	if len(p.Nodes) != len(wantIDs) {
		t.Fatalf("expected %d nodes, got %d", len(wantIDs), len(p.Nodes))
	}
	for i, id := range wantIDs {
		if p.Nodes[i].ID != id {
			t.Fatalf("node %d: expected %s, got %s", i, id, p.Nodes[i].ID)
		}
	}

	if !p.Nodes[0].Data.IsStart {
		t.Fatalf("expected first node to be the start node")
	}
	if p.Nodes[len(p.Nodes)-1].Type != nodeEndCall {
		t.Fatalf("expected last node to end the call, got %s", p.Nodes[len(p.Nodes)-1].Type)
	}
	if !strings.Contains(p.Nodes[2].Data.Prompt, `"Tell me about a hard ticket."`) {
		t.Fatalf("expected question text in prompt: %s", p.Nodes[2].Data.Prompt)
	}

	if len(p.Edges) != len(p.Nodes)-1 {
		t.Fatalf("expected %d edges, got %d", len(p.Nodes)-1, len(p.Edges))
	}
	for i, e := range p.Edges {
		if e.Source != p.Nodes[i].ID || e.Target != p.Nodes[i+1].ID {
			t.Fatalf("edge %d links %s->%s", i, e.Source, e.Target)
		}
	}
}

func TestBuildPathwayWithoutQuestions(t *testing.T) {
	p := BuildPathway(DefaultPathwayConfig(), &domain.Job{ID: "j1", Title: "Ops"})

	if len(p.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(p.Nodes))
	}
	last := p.Edges[len(p.Edges)-1]
	if last.Source != NodeConfirmReady || last.Target != NodeEnd {
		t.Fatalf("expected confirm_ready to link to end, got %s->%s", last.Source, last.Target)
	}
}

func TestPathwayConfigKeepsOverridesAndRejectsBrokenQuestionPrompt(t *testing.T) {
	cfg := PathwayConfig{Greeting: "Hello there", QuestionPrompt: "no placeholder"}.withDefaults()

	if cfg.Greeting != "Hello there" {
		t.Fatalf("expected greeting override to be kept")
	}
	if cfg.QuestionPrompt != DefaultPathwayConfig().QuestionPrompt {
		t.Fatalf("expected question prompt without a verb to fall back to default")
	}
}

func TestCreateAndUpdatePathway(t *testing.T) {
	var updated Pathway
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}

		switch r.URL.Path {
		case "/v1/convo_pathway/create":
			_, _ = w.Write([]byte(`{"status":"success","pathway_id":"pw-1"}`))
		case "/v1/convo_pathway/pw-1":
			if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
				t.Errorf("decode pathway: %v", err)
			}
			_, _ = w.Write([]byte(`{"status":"success"}`))
		default:
			http.NotFound(w, r)
		}
	})

	job := &domain.Job{ID: "j1", Title: "SRE", Questions: []domain.Question{{Text: "On-call?"}}}

	id, err := c.CreatePathway(context.Background(), PathwayName(job), "desc")
	if err != nil {
		t.Fatalf("create pathway: %v", err)
	}
	if id != "pw-1" {
		t.Fatalf("unexpected pathway id %q", id)
	}

	if err := c.UpdatePathway(context.Background(), id, BuildPathway(PathwayConfig{}, job)); err != nil {
		t.Fatalf("update pathway: %v", err)
	}
	if len(updated.Nodes) != 4 || updated.Name != "screen-j1-SRE" {
		t.Fatalf("unexpected pathway sent: %+v", updated)
	}
}

func TestCreatePathwayErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"invalid api key"}`))
	})

	_, err := c.CreatePathway(context.Background(), "n", "d")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "invalid api key" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestUpdatePathwayRequiresID(t *testing.T) {
	c := New(nil, "k")
	if err := c.UpdatePathway(context.Background(), " ", Pathway{}); err == nil {
		t.Fatal("expected error for empty pathway id")
	}
}
