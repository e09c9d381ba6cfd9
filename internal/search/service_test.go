package search

import (
	"context"
	"testing"
)

func samplePolicies() []Record {
	return []Record{
		{ID: "p1", Name: "Leave Policy", Status: "published", Organization: "Acme Corp"},
		{ID: "p2", Name: "Remote Work Policy", Status: "draft", Organization: "Acme Corp"},
		{ID: "p3", Name: "Expense Policy", Status: "published", Organization: "Globex"},
	}
}

func TestFilterRecordsByText(t *testing.T) {
	got := filterRecords(samplePolicies(), Query{Text: "remote"})
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("expected only p2, got %+v", got)
	}
}

func TestFilterRecordsMatchesOrganization(t *testing.T) {
	got := filterRecords(samplePolicies(), Query{Text: "globex"})
	if len(got) != 1 || got[0].ID != "p3" {
		t.Fatalf("expected only p3, got %+v", got)
	}
}

func TestFilterRecordsByStatus(t *testing.T) {
	got := filterRecords(samplePolicies(), Query{FilterStatus: "published"})
	if len(got) != 2 {
		t.Fatalf("expected 2 published policies, got %d", len(got))
	}
	for _, r := range got {
		if r.Status != "published" {
			t.Fatalf("unexpected status %q", r.Status)
		}
	}
}

func TestFilterRecordsLimit(t *testing.T) {
	got := filterRecords(samplePolicies(), Query{Limit: 1})
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
}

func TestSearchFallsBackToList(t *testing.T) {
	svc := NewService(nil, func(ctx context.Context) ([]Record, error) {
		return samplePolicies(), nil
	})

	resp := svc.Search(context.Background(), Query{Text: "policy", FilterStatus: "draft"})
	if resp.Total != 1 {
		t.Fatalf("expected 1 hit, got %d", resp.Total)
	}
	if resp.Results[0].ID != "p2" {
		t.Fatalf("expected p2, got %s", resp.Results[0].ID)
	}
	if resp.Query != "policy" {
		t.Fatalf("expected query echoed back, got %q", resp.Query)
	}
}

func TestSearchFallbackErrorsReturnEmpty(t *testing.T) {
	svc := NewService(nil, func(ctx context.Context) ([]Record, error) {
		return nil, context.DeadlineExceeded
	})

	resp := svc.Search(context.Background(), Query{Text: "anything"})
	if resp.Results == nil {
		t.Fatal("results should be non-nil")
	}
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}
