// Package record locates decision record files, assigns identifiers and
// renders the labels other records use to link to them.
package record

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/slug"
	"github.com/starford/decisionrecords/internal/storage"
)

var idPrefixRe = regexp.MustCompile(`^(\d{4,})`)

// Find returns the name of the record with the given identifier. Only the
// immediate entries of the record directory are considered and the first
// entry named "<id:04d>-<something>" wins.
func Find(store storage.Provider, id int) (string, error) {
	names, err := store.Entries()
	if err != nil {
		return "", fmt.Errorf("record: find %s: %w: %v", models.PadID(id), apperr.ErrNotFound, err)
	}
	prefix := models.PadID(id) + "-"
	for _, name := range names {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		return name, nil
	}
	return "", fmt.Errorf("record: find %s: %w", models.PadID(id), apperr.ErrNotFound)
}

// NextID returns one more than the highest identifier in the record
// directory, or 1 when there is none or the directory cannot be read.
func NextID(store storage.Provider) int {
	names, err := store.Entries()
	if err != nil {
		return 1
	}
	highest := 0
	for _, name := range names {
		m := idPrefixRe.FindString(name)
		if m == "" {
			continue
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1
}

// Filename builds the on-disk name of a new record.
func Filename(id int, title string, format models.Format) string {
	return fmt.Sprintf("%s-%s.%s", models.PadID(id), slug.Make(title), format)
}

// FormatLink renders the label used to reference the record stored under
// name. The link syntax follows format; the display text is the record's own
// title when one can be read, otherwise the relative path.
func FormatLink(store storage.Provider, name string, format models.Format) string {
	rel := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	text := rel

	dialect, ok := models.FormatOf(rel)
	if !ok {
		dialect = format
	}
	if data, err := store.Read(name); err == nil {
		if title, ok := parser.Title(data, dialect); ok {
			text = title
		}
	}

	switch format {
	case models.FormatMarkdown:
		return fmt.Sprintf("[%s](%s)", text, rel)
	case models.FormatRST:
		return fmt.Sprintf(":doc:`%s <%s>`", text, rel)
	}
	return rel
}
