// Package storage defines the record directory file-system abstraction.
package storage

import (
	"context"

	"github.com/starford/decisionrecords/internal/models"
)

// Provider is the interface for record directory operations. Every name is
// relative to the record directory.
type Provider interface {
	// Root returns the absolute record directory.
	Root() string
	// Entries returns the names of the immediate, non-directory entries of
	// the record directory in directory-iteration order.
	Entries() ([]string, error)
	// List returns metadata for every .md and .rst file in the record directory.
	List() ([]models.RecordMetadata, error)
	// Read returns the raw bytes of the file at name.
	Read(name string) ([]byte, error)
	// Write atomically replaces the content of name.
	Write(name string, content []byte) error
	// Create atomically writes a new file and fails with apperr.ErrAlreadyExists
	// when name is taken.
	Create(name string, content []byte) error
	// Lock takes the exclusive record directory lock, waiting until ctx is done.
	Lock(ctx context.Context) (unlock func() error, err error)
}
