package bland

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

const (
	pathwayPath = "/v1/convo_pathway"

	nodeDefault = "Default"
	nodeEndCall = "End Call"

	NodeStart        = "start"
	NodeConfirmReady = "confirm_ready"
	NodeEnd          = "end"
)

// PathwayConfig holds the static script every screening pathway is instantiated from.
// Greeting and ClosingText may use the {{candidate_name}}, {{job_title}} and {{company_name}}
// variables, which the vendor fills from the call's request data.
type PathwayConfig struct {
	Greeting       string `mapstructure:"greeting"`
	ReadyPrompt    string `mapstructure:"ready-prompt"`
	QuestionPrompt string `mapstructure:"question-prompt"`
	ClosingText    string `mapstructure:"closing-text"`
	GlobalPrompt   string `mapstructure:"global-prompt"`
}

func DefaultPathwayConfig() PathwayConfig {
	return PathwayConfig{
		Greeting: "Hi {{candidate_name}}, this is the automated screening assistant calling on behalf of " +
			"{{company_name}} about your application for the {{job_title}} position.",
		ReadyPrompt: "Explain that the call is a short first-round screen of a few questions and takes about ten minutes. " +
			"Ask whether now is a good time to start.",
		QuestionPrompt: "Ask the candidate exactly this question: %q. Let them answer fully without judging the answer. " +
			"Ask at most one short follow-up if the answer is unclear.",
		ClosingText: "Thank you {{candidate_name}}, that was the last question. The {{company_name}} team will review " +
			"your answers and get back to you. Goodbye!",
		GlobalPrompt: "You are a polite, neutral interviewer. Never reveal scores, never promise outcomes, " +
			"and keep your own turns short.",
	}
}

// withDefaults fills empty fields from DefaultPathwayConfig.
func (c PathwayConfig) withDefaults() PathwayConfig {
	d := DefaultPathwayConfig()
	if strings.TrimSpace(c.Greeting) == "" {
		c.Greeting = d.Greeting
	}
	if strings.TrimSpace(c.ReadyPrompt) == "" {
		c.ReadyPrompt = d.ReadyPrompt
	}
	if strings.TrimSpace(c.QuestionPrompt) == "" || !strings.Contains(c.QuestionPrompt, "%") {
		c.QuestionPrompt = d.QuestionPrompt
	}
	if strings.TrimSpace(c.ClosingText) == "" {
		c.ClosingText = d.ClosingText
	}
	if strings.TrimSpace(c.GlobalPrompt) == "" {
		c.GlobalPrompt = d.GlobalPrompt
	}
	return c
}

type Pathway struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

type Node struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Data NodeData `json:"data"`
}

type NodeData struct {
	Name         string `json:"name"`
	IsStart      bool   `json:"isStart,omitempty"`
	Text         string `json:"text,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Condition    string `json:"condition,omitempty"`
	GlobalPrompt string `json:"globalPrompt,omitempty"`
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// QuestionNodeID returns the node id of the 1-based question index.
func QuestionNodeID(i int) string {
	return fmt.Sprintf("question_%d", i)
}

// BuildPathway instantiates the linear screening graph
// start -> confirm_ready -> question_1..N -> end for the job.
func BuildPathway(cfg PathwayConfig, job *domain.Job) Pathway {
	cfg = cfg.withDefaults()

	nodes := []Node{
		{
			ID:   NodeStart,
			Type: nodeDefault,
			Data: NodeData{Name: "Start", IsStart: true, Text: cfg.Greeting, GlobalPrompt: cfg.GlobalPrompt},
		},
		{
			ID:   NodeConfirmReady,
			Type: nodeDefault,
			Data: NodeData{
				Name:         "Confirm ready",
				Prompt:       cfg.ReadyPrompt,
				Condition:    "The candidate confirmed they are ready to start.",
				GlobalPrompt: cfg.GlobalPrompt,
			},
		},
	}

	for i, q := range job.Questions {
		nodes = append(nodes, Node{
			ID:   QuestionNodeID(i + 1),
			Type: nodeDefault,
			Data: NodeData{
				Name:         fmt.Sprintf("Question %d", i+1),
				Prompt:       fmt.Sprintf(cfg.QuestionPrompt, q.Text),
				Condition:    "The candidate has answered the question.",
				GlobalPrompt: cfg.GlobalPrompt,
			},
		})
	}

	nodes = append(nodes, Node{
		ID:   NodeEnd,
		Type: nodeEndCall,
		Data: NodeData{Name: "End call", Text: cfg.ClosingText, GlobalPrompt: cfg.GlobalPrompt},
	})

	edges := make([]Edge, 0, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		edges = append(edges, Edge{
			ID:     fmt.Sprintf("edge_%d", i+1),
			Source: nodes[i].ID,
			Target: nodes[i+1].ID,
			Label:  edgeLabel(nodes[i].ID),
		})
	}

	return Pathway{
		Name:        PathwayName(job),
		Description: fmt.Sprintf("Phone screen for job %s with %d questions", job.ID, len(job.Questions)),
		Nodes:       nodes,
		Edges:       edges,
	}
}

func PathwayName(job *domain.Job) string {
	return fmt.Sprintf("screen-%s-%s", job.ID, job.Title)
}

func edgeLabel(source string) string {
	switch source {
	case NodeStart:
		return "candidate picked up"
	case NodeConfirmReady:
		return "candidate is ready"
	default:
		return "answered"
	}
}

type createPathwayResponse struct {
	PathwayID string `json:"pathway_id"`
}

// CreatePathway registers an empty pathway and returns its id.
func (c *Client) CreatePathway(ctx context.Context, name, description string) (string, error) {
	body := map[string]string{
		"name":        name,
		"description": description,
	}

	var resp createPathwayResponse
	if err := c.doJSON(ctx, http.MethodPost, pathwayPath+"/create", body, &resp); err != nil {
		return "", fmt.Errorf("create pathway: %w", err)
	}

	if strings.TrimSpace(resp.PathwayID) == "" {
		return "", errors.New("create pathway: vendor returned empty pathway id")
	}

	c.logger.Info("pathway created", zap.String("pathway_id", resp.PathwayID), zap.String("name", name))
	return resp.PathwayID, nil
}

// UpdatePathway replaces the nodes and edges of an existing pathway.
func (c *Client) UpdatePathway(ctx context.Context, id string, pathway Pathway) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("update pathway: pathway id is required")
	}

	if err := c.doJSON(ctx, http.MethodPost, pathwayPath+"/"+id, pathway, nil); err != nil {
		return fmt.Errorf("update pathway %s: %w", id, err)
	}

	c.logger.Info("pathway updated",
		zap.String("pathway_id", id),
		zap.Int("nodes", len(pathway.Nodes)),
		zap.Int("edges", len(pathway.Edges)),
	)
	return nil
}
