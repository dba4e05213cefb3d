// Package models defines the domain types for decision records.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/decisionrecords/internal/translate"
)

// Format is the document dialect of a record file.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatRST      Format = "rst"
)

// Formats lists every supported dialect.
var Formats = []Format{FormatMarkdown, FormatRST}

// Valid reports whether f is a supported dialect.
func (f Format) Valid() bool {
	return f == FormatMarkdown || f == FormatRST
}

// FormatOf returns the dialect implied by the file suffix of path and false
// when the suffix is not recognised.
func FormatOf(path string) (Format, bool) {
	f := Format(strings.TrimPrefix(filepath.Ext(path), "."))
	return f, f.Valid()
}

// Status is the lifecycle state of a record. Translation is applied only when
// rendering or parsing, never when comparing.
type Status int

const (
	StatusOther Status = iota
	StatusProposed
	StatusApproved
)

const (
	canonicalProposed = "Proposed"
	canonicalApproved = "Approved"
)

// String returns the canonical English word.
func (s Status) String() string {
	switch s {
	case StatusProposed:
		return canonicalProposed
	case StatusApproved:
		return canonicalApproved
	default:
		return "Other"
	}
}

// Label renders the status word in the language of tr.
func (s Status) Label(tr translate.Table) string {
	return tr.Lookup(s.String())
}

// ParseStatus maps a word found in a document (canonical or translated) back
// to a Status.
func ParseStatus(word string, tr translate.Table) Status {
	w := strings.TrimSpace(word)
	switch {
	case strings.EqualFold(w, canonicalProposed) || w == tr.Lookup(canonicalProposed):
		return StatusProposed
	case strings.EqualFold(w, canonicalApproved) || w == tr.Lookup(canonicalApproved):
		return StatusApproved
	default:
		return StatusOther
	}
}

// Record is one decision record file in the record directory.
type Record struct {
	ID        int       `json:"id"`
	Slug      string    `json:"slug"`
	Format    Format    `json:"format"`
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// PaddedID renders the identifier zero-padded to at least four digits.
func (r Record) PaddedID() string {
	return PadID(r.ID)
}

// PadID renders id zero-padded to at least four digits.
func PadID(id int) string {
	return fmt.Sprintf("%04d", id)
}

// RecordMetadata is the lightweight listing entry returned by storage.
type RecordMetadata struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
