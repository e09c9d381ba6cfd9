package search

// Record is the data indexed for each policy.
type Record struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Organization string `json:"organization,omitempty"`
}

// Query describes a policy search request.
type Query struct {
	Text         string
	FilterStatus string // empty = all statuses
	Limit        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Record `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}
