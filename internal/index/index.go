package index

import "github.com/starford/decisionrecords/internal/models"

// RecordIndex defines the interface for record indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RecordIndex interface {
	UpsertRecord(r RecordRow, body string, links []models.Link) error
	DeleteRecord(path string) error
	GetChecksum(path string) (string, error)
	GetRecord(id int) (*RecordRow, error)
	ListRecords(status string) ([]RecordRow, error)
	Relations(id int) (outgoing, incoming []models.Link, err error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphEdge, error)
	Check() ([]Issue, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)
