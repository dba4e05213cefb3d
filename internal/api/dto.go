package api

import (
	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/recordservice"
)

// RecordDetail is the response for a single record.
type RecordDetail struct {
	recordservice.Detail
	Incoming []models.Link `json:"incoming"`
}

// RecordListResponse wraps record listings.
type RecordListResponse struct {
	Records []index.RecordRow `json:"records"`
	Total   int               `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// GraphResponse wraps the relation graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes"`
	Edges []index.GraphEdge `json:"edges"`
}

// CheckResponse wraps consistency issues.
type CheckResponse struct {
	Issues []index.Issue `json:"issues"`
	Total  int           `json:"total"`
}
