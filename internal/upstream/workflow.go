package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// WorkflowClient fronts the approval workflow service. Requests carry no
// structural payload; the policy service already holds the saved structure
// by the time anything is routed for approval.
type WorkflowClient struct {
	client
}

func NewWorkflowClient(baseURL string, timeout time.Duration) *WorkflowClient {
	return &WorkflowClient{client: newClient(baseURL, timeout)}
}

// Submit routes a saved policy into the approval workflow.
func (c *WorkflowClient) Submit(ctx context.Context, policyID, templateID, comments string) error {
	body := map[string]string{"template_id": templateID}
	if comments != "" {
		body["comments"] = comments
	}
	path := "/api/workflows/" + url.PathEscape(policyID) + "/submit"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *WorkflowClient) Approve(ctx context.Context, policyID, comments string) error {
	body := map[string]string{}
	if comments != "" {
		body["comments"] = comments
	}
	path := "/api/workflows/" + url.PathEscape(policyID) + "/approve"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *WorkflowClient) Reject(ctx context.Context, policyID, comments string) error {
	body := map[string]string{}
	if comments != "" {
		body["comments"] = comments
	}
	path := "/api/workflows/" + url.PathEscape(policyID) + "/reject"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}
