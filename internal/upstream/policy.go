package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"policystudio/api/internal/document"
)

// PolicyClient fronts the policy service, which owns policy records, version
// assignment, structure validation, and document rendering.
type PolicyClient struct {
	client
}

func NewPolicyClient(baseURL string, timeout time.Duration) *PolicyClient {
	return &PolicyClient{client: newClient(baseURL, timeout)}
}

func (c *PolicyClient) ListPolicies(ctx context.Context) ([]document.Policy, error) {
	var out struct {
		Policies []document.Policy `json:"policies"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/policies", nil, &out); err != nil {
		return nil, err
	}
	return out.Policies, nil
}

func (c *PolicyClient) GetPolicy(ctx context.Context, policyID string) (document.Policy, error) {
	var out document.Policy
	if err := c.doJSON(ctx, http.MethodGet, "/api/policies/"+url.PathEscape(policyID), nil, &out); err != nil {
		return document.Policy{}, err
	}
	return out, nil
}

func (c *PolicyClient) CreatePolicy(ctx context.Context, name string) (document.Policy, error) {
	var out document.Policy
	body := map[string]string{"name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/policies", body, &out); err != nil {
		return document.Policy{}, err
	}
	return out, nil
}

func (c *PolicyClient) DeletePolicy(ctx context.Context, policyID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/policies/"+url.PathEscape(policyID), nil, nil)
}

// SaveStructure persists the structure through the server-side AI validation
// check. The returned version is server-assigned and monotonic; a rejected
// save surfaces as *gate.ValidationError and assigns nothing.
func (c *PolicyClient) SaveStructure(ctx context.Context, policyID string, s document.Structure) (int, error) {
	var out struct {
		Version int `json:"version"`
	}
	path := "/api/policies/" + url.PathEscape(policyID) + "/structure"
	if err := c.doJSON(ctx, http.MethodPut, path, s, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

// ValidateStructure is the pre-check: identical request shape and failure
// modes as SaveStructure, but the version never advances.
func (c *PolicyClient) ValidateStructure(ctx context.Context, policyID string, s document.Structure) error {
	path := "/api/policies/" + url.PathEscape(policyID) + "/structure/validate"
	return c.doJSON(ctx, http.MethodPost, path, s, nil)
}

// EnhanceStructure asks the AI backend for a schema-preserving improvement
// of the existing structure.
func (c *PolicyClient) EnhanceStructure(ctx context.Context, policyID, instruction string) (document.Structure, error) {
	var out struct {
		Structure document.Structure `json:"document_structure"`
	}
	body := map[string]string{"instruction": instruction}
	path := "/api/policies/" + url.PathEscape(policyID) + "/structure/enhance"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return document.Structure{}, err
	}
	return out.Structure, nil
}

// RewriteInput names the section and the narrative action (rewrite, expand,
// simplify, change tone) for an AI narrative pass.
type RewriteInput struct {
	SectionID          string `json:"section_id"`
	Action             string `json:"action"`
	CurrentContent     string `json:"current_content"`
	SectionTitle       string `json:"section_title"`
	SectionDescription string `json:"section_description"`
	Tone               string `json:"tone"`
}

type RewriteResult struct {
	NarrativeContent   string `json:"narrative_content"`
	Tone               string `json:"tone"`
	AIGenerated        bool   `json:"ai_generated"`
	CommunicationStyle string `json:"communication_style"`
}

func (c *PolicyClient) RewriteSection(ctx context.Context, policyID string, input RewriteInput) (RewriteResult, error) {
	var out RewriteResult
	path := "/api/policies/" + url.PathEscape(policyID) + "/sections/rewrite"
	if err := c.doJSON(ctx, http.MethodPost, path, input, &out); err != nil {
		return RewriteResult{}, err
	}
	return out, nil
}

// CompareVersions returns the policy service's diff between two saved
// versions. The diff shape is owned by the service and passes through
// untouched.
func (c *PolicyClient) CompareVersions(ctx context.Context, policyID string, from, to int) (map[string]any, error) {
	var out map[string]any
	path := fmt.Sprintf("/api/policies/%s/versions/compare?from=%d&to=%d", url.PathEscape(policyID), from, to)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Render formats. The renderer owns layout; this client only carries the
// blob home.
const (
	RenderWord = "word"
	RenderPDF  = "pdf"
	RenderJSON = "json"
)

// Render asks the document renderer for the policy in the given format and
// returns the blob with its content type.
func (c *PolicyClient) Render(ctx context.Context, policyID, format string) ([]byte, string, error) {
	path := "/api/policies/" + url.PathEscape(policyID) + "/render?format=" + url.QueryEscape(format)
	return c.doRaw(ctx, http.MethodGet, path)
}
