package search

// ResultType identifies the kind of item in a search result.
type ResultType string

const (
	ResultEntity   ResultType = "entity"
	ResultNode     ResultType = "node"
	ResultCategory ResultType = "category"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   string     `json:"projectId"`
	Space       string     `json:"space,omitempty"`
}

// Query describes a search request, scoped to one project.
type Query struct {
	ProjectID  string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data pushed into the index for any item kind.
type Record struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	Space       string `json:"space,omitempty"`
}
