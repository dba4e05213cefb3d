package api

import (
	"context"

	"github.com/starford/decisionrecords/internal/index"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/recordservice"
)

// Service answers API queries. Record content is always read from disk; the
// index supplies listings, reverse relations, the graph and search.
type Service struct {
	records *recordservice.Service
	db      index.RecordIndex
}

// NewService creates a new API service.
func NewService(records *recordservice.Service, db index.RecordIndex) *Service {
	return &Service{records: records, db: db}
}

// ListRecords returns indexed records, optionally filtered by status word.
func (s *Service) ListRecords(_ context.Context, status string) ([]index.RecordRow, error) {
	rows, err := s.db.ListRecords(status)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []index.RecordRow{}
	}
	return rows, nil
}

// GetRecord reads a record and adds the relation lines other records hold
// about it.
func (s *Service) GetRecord(ctx context.Context, id int) (*RecordDetail, error) {
	d, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, incoming, err := s.db.Relations(id)
	if err != nil {
		return nil, err
	}
	if d.Links == nil {
		d.Links = []models.Link{}
	}
	if incoming == nil {
		incoming = []models.Link{}
	}
	return &RecordDetail{Detail: *d, Incoming: incoming}, nil
}

// Search delegates to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph delegates to the index.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphEdge, error) {
	return s.db.Graph()
}

// Check delegates to the index.
func (s *Service) Check(_ context.Context) ([]index.Issue, error) {
	issues, err := s.db.Check()
	if issues == nil {
		issues = []index.Issue{}
	}
	return issues, err
}
