// Package statusblock rewrites the status section of a decision record while
// leaving the rest of the document intact.
package statusblock

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/storage"
)

// Edit describes one mutation of a status block.
type Edit struct {
	// Heading is the already translated section heading, e.g. "Status".
	Heading string
	// Inject is the line to add.
	Inject string
	// StartOfBlock injects right after the heading instead of before the
	// line that closes the block.
	StartOfBlock bool
	// ReplaceBlock discards the existing block content and keeps only Inject.
	ReplaceBlock bool
	// Prune drops every line of the document that starts, after leading
	// whitespace, with one of these strings.
	Prune []string
}

// Result reports what the rewrite found.
type Result struct {
	// Found is true when the heading was seen.
	Found bool
	// Injected is true when Inject was written. A block that is never closed
	// in append mode is left untouched apart from pruning.
	Injected bool
}

type state int

const (
	beforeBlock state = iota
	headingSeen       // RST only: the heading line has been read
	inBlock
	discarding // replace mode: dropping old block content
	afterBlock
)

// Rewrite applies e to the document src written in dialect and returns the
// new content. Consecutive blank lines are collapsed to one and line endings
// are normalised to LF.
func Rewrite(src []byte, dialect models.Format, e Edit) ([]byte, Result, error) {
	rules, err := parser.NewBlockRules(dialect, e.Heading)
	if err != nil {
		return nil, Result{}, err
	}
	prune := compilePrune(e.Prune)

	var (
		w   writer
		res Result
		st  = beforeBlock
	)
	inject := func() {
		w.line("")
		w.line(e.Inject)
		res.Injected = true
		if e.ReplaceBlock {
			w.line("")
			st = discarding
		}
	}
	openBlock := func() {
		st = inBlock
		if e.StartOfBlock || e.ReplaceBlock {
			inject()
		}
	}

	for _, line := range parser.Lines(src) {
		if pruned(prune, line) {
			continue
		}
		if line == "" && w.last == "" {
			continue
		}

		switch st {
		case afterBlock:
			w.line(line)
		case discarding:
			if rules.IsCloser(line) {
				st = afterBlock
				w.line(line)
			}
		case inBlock:
			if rules.IsCloser(line) {
				st = afterBlock
				if !e.StartOfBlock {
					w.line(e.Inject)
					w.line("")
					res.Injected = true
				}
			}
			w.line(line)
		case headingSeen:
			w.line(line)
			openBlock()
		case beforeBlock:
			w.line(line)
			if !rules.IsHeading(line) {
				continue
			}
			res.Found = true
			if dialect == models.FormatRST {
				st = headingSeen
				continue
			}
			openBlock()
		}
	}
	return w.bytes(), res, nil
}

// Apply rewrites the record stored under name. The dialect is taken from the
// file suffix and the file is replaced atomically.
func Apply(store storage.Provider, name string, e Edit) (Result, error) {
	dialect, _ := models.FormatOf(name)
	src, err := store.Read(name)
	if err != nil {
		return Result{}, err
	}
	out, res, err := Rewrite(src, dialect, e)
	if err != nil {
		return Result{}, fmt.Errorf("statusblock: %s: %w", name, err)
	}
	if err := store.Write(name, out); err != nil {
		return Result{}, err
	}
	return res, nil
}

func compilePrune(items []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(items))
	for _, p := range items {
		if p == "" {
			continue
		}
		out = append(out, regexp.MustCompile(`^\s*`+regexp.QuoteMeta(p)))
	}
	return out
}

func pruned(patterns []*regexp.Regexp, line string) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// writer accumulates output lines and remembers the last one written.
type writer struct {
	b    strings.Builder
	last string
}

func (w *writer) line(s string) {
	w.b.WriteString(s)
	w.b.WriteByte('\n')
	w.last = s
}

func (w *writer) bytes() []byte {
	return []byte(w.b.String())
}
