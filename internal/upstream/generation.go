package upstream

import (
	"context"
	"net/http"
	"time"

	"policystudio/api/internal/document"
	"policystudio/api/internal/genflow"
)

// GenerationClient fronts the generation service, which turns a chat
// transcript into a document structure. It owns intent detection and
// parameter completeness; this side never second-guesses either.
type GenerationClient struct {
	client
}

func NewGenerationClient(baseURL string, timeout time.Duration) *GenerationClient {
	return &GenerationClient{client: newClient(baseURL, timeout)}
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	PolicyID  string `json:"policy_id,omitempty"`
}

// ChatTurn sends one user message and returns the service's turn report.
func (c *GenerationClient) ChatTurn(ctx context.Context, sessionID, policyID, message string) (genflow.TurnResult, error) {
	var out genflow.TurnResult
	body := chatRequest{SessionID: sessionID, Message: message, PolicyID: policyID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return genflow.TurnResult{}, err
	}
	return out, nil
}

type generateRequest struct {
	SessionID  string `json:"session_id"`
	PolicyID   string `json:"policy_id,omitempty"`
	PolicyName string `json:"policy_name"`
	Tone       string `json:"tone,omitempty"`
}

// GenerateStructure turns the session's collected parameters into a
// candidate document structure.
func (c *GenerationClient) GenerateStructure(ctx context.Context, sessionID, policyID, policyName, tone string) (document.Structure, error) {
	var out struct {
		Structure document.Structure `json:"document_structure"`
	}
	body := generateRequest{SessionID: sessionID, PolicyID: policyID, PolicyName: policyName, Tone: tone}
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate", body, &out); err != nil {
		return document.Structure{}, err
	}
	return out.Structure, nil
}
