package search

import (
	"context"
	"log"
	"strings"
)

// Lister supplies the authoritative policy list for the fallback path,
// normally backed by the policy service.
type Lister func(ctx context.Context) ([]Record, error)

// Service is the facade that tries Meilisearch first and falls back to
// filtering the policy service's own list in memory.
type Service struct {
	meili *Meili
	list  Lister
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, list Lister) *Service {
	return &Service{meili: meili, list: list}
}

// Search tries Meilisearch if healthy, otherwise filters the upstream list.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to list filter: %v", err)
	}

	records, err := s.list(ctx)
	if err != nil {
		log.Printf("search: list fallback error: %v", err)
		return Response{Results: []Record{}, Total: 0, Query: q.Text}
	}
	results := filterRecords(records, q)
	return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
}

// IndexPolicy indexes a policy summary (fire-and-forget to Meilisearch).
func (s *Service) IndexPolicy(record Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPolicy(record); err != nil {
			log.Printf("search: index policy %s: %v", record.ID, err)
		}
	}()
}

// DeletePolicy removes a policy from the index (fire-and-forget).
func (s *Service) DeletePolicy(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePolicy(id); err != nil {
			log.Printf("search: delete policy %s: %v", id, err)
		}
	}()
}

// IndexPolicies bulk-indexes a policy list (fire-and-forget). Callers feed
// it the full list whenever they happen to have one, keeping the index warm
// without a dedicated reindex pass.
func (s *Service) IndexPolicies(records []Record) {
	if s.meili == nil || !s.meili.Healthy() || len(records) == 0 {
		return
	}
	go func() {
		if err := s.meili.IndexPolicies(records); err != nil {
			log.Printf("search: bulk index %d policies: %v", len(records), err)
		}
	}()
}

func filterRecords(records []Record, q Query) []Record {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	var out []Record
	for _, r := range records {
		if q.FilterStatus != "" && r.Status != q.FilterStatus {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Name), needle) &&
			!strings.Contains(strings.ToLower(r.Organization), needle) {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func nonNil(results []Record) []Record {
	if results == nil {
		return []Record{}
	}
	return results
}
