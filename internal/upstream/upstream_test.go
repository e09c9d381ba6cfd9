package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"policystudio/api/internal/document"
	"policystudio/api/internal/gate"
)

func TestSaveStructureReturnsVersion(t *testing.T) {
	var gotAuth string
	var gotBody document.Structure
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPut || r.URL.Path != "/api/policies/pol-1/structure" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"version": 4})
	}))
	defer server.Close()

	c := NewPolicyClient(server.URL, 5*time.Second)
	ctx := WithToken(context.Background(), "caller-token")
	structure := document.Structure{Sections: []document.Section{{ID: "s1", Title: "Scope", Order: 1}}}

	version, err := c.SaveStructure(ctx, "pol-1", structure)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
	if gotAuth != "Bearer caller-token" {
		t.Fatalf("token not forwarded, got %q", gotAuth)
	}
	if len(gotBody.Sections) != 1 || gotBody.Sections[0].ID != "s1" {
		t.Fatalf("structure not sent intact: %+v", gotBody)
	}
}

func TestSaveStructureMapsValidationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ai_validation_failed": true,
			"issues": []map[string]string{
				{"severity": "error", "category": "structure", "message": "untitled section", "path": "$.sections[2]"},
				{"severity": "warning", "category": "fields", "message": "ambiguous name"},
			},
			"suggestions":            []string{"add a scope section"},
			"normalized_field_names": map[string]string{"emp name": "employee_name"},
			"message":                "structure rejected",
		})
	}))
	defer server.Close()

	c := NewPolicyClient(server.URL, 5*time.Second)
	_, err := c.SaveStructure(context.Background(), "pol-1", document.Structure{})

	var validation *gate.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validation.Issues) != 2 {
		t.Fatalf("issues truncated: %+v", validation.Issues)
	}
	if validation.Issues[0].Path != "$.sections[2]" {
		t.Fatalf("issue locator lost: %+v", validation.Issues[0])
	}
	if validation.RenameMap["emp name"] != "employee_name" {
		t.Fatalf("rename map lost: %v", validation.RenameMap)
	}
}

func TestOutagesMapToServiceUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewPolicyClient(server.URL, 5*time.Second)

		_, err := c.SaveStructure(context.Background(), "pol-1", document.Structure{})
		if !errors.Is(err, gate.ErrServiceUnavailable) {
			t.Errorf("status %d: expected ErrServiceUnavailable, got %v", status, err)
		}
		server.Close()
	}
}

func TestGenericUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "NOT_FOUND", "error": "no such policy"})
	}))
	defer server.Close()

	c := NewPolicyClient(server.URL, 5*time.Second)
	_, err := c.GetPolicy(context.Background(), "missing")

	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if api.Status != http.StatusNotFound || api.Code != "NOT_FOUND" {
		t.Fatalf("unexpected mapping: %+v", api)
	}
	if errors.Is(err, gate.ErrServiceUnavailable) {
		t.Fatalf("404 misclassified as outage")
	}
}

func TestChatTurnRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Message != "I need a travel policy" || body.SessionID != "sess-1" {
			t.Errorf("unexpected chat request: %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_id":       "sess-1",
			"ai_response":      "Which regions does it cover?",
			"phase":            "collecting_parameters",
			"collected_params": map[string]any{"policy_type": "travel"},
			"missing_params":   []string{"regions"},
			"is_complete":      false,
		})
	}))
	defer server.Close()

	c := NewGenerationClient(server.URL, 5*time.Second)
	result, err := c.ChatTurn(context.Background(), "sess-1", "", "I need a travel policy")
	if err != nil {
		t.Fatalf("chat turn: %v", err)
	}
	if result.IsComplete || result.CollectedParams["policy_type"] != "travel" {
		t.Fatalf("turn result decoded wrong: %+v", result)
	}
	if len(result.MissingParams) != 1 || result.MissingParams[0] != "regions" {
		t.Fatalf("missing params lost: %v", result.MissingParams)
	}
}

func TestRenderReturnsBlobAndContentType(t *testing.T) {
	blob := []byte("%PDF-1.7 fake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "pdf" {
			t.Errorf("expected format=pdf, got %q", got)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(blob)
	}))
	defer server.Close()

	c := NewPolicyClient(server.URL, 5*time.Second)
	data, contentType, err := c.Render(context.Background(), "pol-1", RenderPDF)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if contentType != "application/pdf" || string(data) != string(blob) {
		t.Fatalf("blob not carried intact: %q %q", contentType, data)
	}
}

func TestWorkflowSubmitSendsTemplate(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/workflows/pol-1/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewWorkflowClient(server.URL, 5*time.Second)
	if err := c.Submit(context.Background(), "pol-1", "tmpl-approval", "please review"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got["template_id"] != "tmpl-approval" || got["comments"] != "please review" {
		t.Fatalf("unexpected body: %v", got)
	}
}
