// Package parser extracts titles, status blocks and relation lines from
// decision records without building a markup tree.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/translate"
)

var (
	mdHeadingRe    = regexp.MustCompile(`^\s*#+\s+\S`)
	mdTitleRe      = regexp.MustCompile(`^#\s+(\d+)\.?\s+(.+?)\s*$`)
	rstDelimiterRe = regexp.MustCompile(`^\s*(\*+|#+)\s*$`)
)

// Lines splits data into lines without their terminators. A trailing newline
// does not produce a final empty line and CRLF endings are accepted.
func Lines(data []byte) []string {
	s := string(data)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// BlockRules recognises the boundaries of one named section in a dialect.
type BlockRules struct {
	dialect models.Format
	heading *regexp.Regexp
	closer  *regexp.Regexp
}

// NewBlockRules builds the section matchers for heading in dialect.
//
// Markdown sections start at a line of '#' characters followed by exactly the
// heading text and end at the next heading of any level. RST sections start
// on the line after the heading text and end at the next line made only of
// '*' or '#' characters.
func NewBlockRules(dialect models.Format, heading string) (*BlockRules, error) {
	quoted := regexp.QuoteMeta(heading)
	switch dialect {
	case models.FormatMarkdown:
		return &BlockRules{
			dialect: dialect,
			heading: regexp.MustCompile(`^\s*#+\s+` + quoted + `\s*$`),
			closer:  mdHeadingRe,
		}, nil
	case models.FormatRST:
		return &BlockRules{
			dialect: dialect,
			heading: regexp.MustCompile(`^\s*` + quoted + `\s*$`),
			closer:  rstDelimiterRe,
		}, nil
	}
	return nil, fmt.Errorf("parser: %q: %w", dialect, apperr.ErrUnsupportedFormat)
}

// Dialect returns the dialect the rules were built for.
func (r *BlockRules) Dialect() models.Format { return r.dialect }

// IsHeading reports whether line is the section heading.
func (r *BlockRules) IsHeading(line string) bool { return r.heading.MatchString(line) }

// IsCloser reports whether line ends the section.
func (r *BlockRules) IsCloser(line string) bool { return r.closer.MatchString(line) }

// Title returns the display title of the document's first heading.
//
// For markdown this is the text after "# NUMBER." on the first such line. For
// RST it is the line following the first delimiter line.
func Title(data []byte, dialect models.Format) (string, bool) {
	pastDelimiter := false
	for _, line := range Lines(data) {
		switch dialect {
		case models.FormatMarkdown:
			if m := mdTitleRe.FindStringSubmatch(line); m != nil {
				return m[2], true
			}
		case models.FormatRST:
			if pastDelimiter {
				title := strings.TrimSpace(line)
				return title, title != ""
			}
			pastDelimiter = rstDelimiterRe.MatchString(line)
		default:
			return "", false
		}
	}
	return "", false
}

// BlockLines returns the trimmed, non-blank content lines of the section
// matched by rules. found is false when the heading never appears.
func BlockLines(data []byte, rules *BlockRules) (lines []string, found bool) {
	seenHeading := false
	inBlock := false
	for _, line := range Lines(data) {
		switch {
		case inBlock:
			if rules.IsCloser(line) {
				return lines, true
			}
		case seenHeading:
			// RST: the heading's underline opens the block but is not content.
			inBlock = true
			if rules.IsCloser(line) {
				continue
			}
		case rules.IsHeading(line):
			if rules.Dialect() == models.FormatMarkdown {
				inBlock = true
			} else {
				seenHeading = true
			}
			continue
		default:
			continue
		}
		if t := strings.TrimSpace(line); t != "" {
			lines = append(lines, t)
		}
	}
	return lines, inBlock || seenHeading
}

// Result holds the output of parsing a record.
type Result struct {
	Title      string
	Status     models.Status
	StatusWord string
	Links      []models.Link
	HasBlock   bool
}

// Parse extracts the title, status word and relation lines of a record.
func Parse(data []byte, dialect models.Format, phrases *Phrases) (*Result, error) {
	rules, err := NewBlockRules(dialect, phrases.Heading())
	if err != nil {
		return nil, err
	}
	title, _ := Title(data, dialect)
	res := &Result{Title: title}

	lines, found := BlockLines(data, rules)
	res.HasBlock = found
	for _, line := range lines {
		if link, ok := phrases.Match(line); ok {
			res.Links = append(res.Links, link)
			continue
		}
		if res.StatusWord == "" {
			res.StatusWord = line
			res.Status = models.ParseStatus(line, phrases.tr)
		}
	}
	return res, nil
}

// Phrases recognises translated relation lines.
type Phrases struct {
	tr       translate.Table
	heading  string
	matchers []phraseMatcher
}

type phraseMatcher struct {
	kind      models.RelationKind
	direction models.Direction
	prefix    string
}

// NewPhrases prepares relation matchers for the language of tr.
func NewPhrases(tr translate.Table) *Phrases {
	p := &Phrases{tr: tr, heading: tr.Lookup("Status")}
	for _, kind := range models.RelationKinds {
		rel, _ := models.RelationFor(kind)
		for _, d := range []models.Direction{models.DirectionFrom, models.DirectionTo} {
			phrase := tr.Lookup(rel.Phrase(d))
			prefix, _, _ := strings.Cut(phrase, models.LabelPlaceholder)
			prefix = strings.TrimSpace(prefix)
			if prefix == "" || p.has(kind, prefix) {
				continue
			}
			p.matchers = append(p.matchers, phraseMatcher{kind: kind, direction: d, prefix: prefix})
		}
	}
	// Longest prefix wins when one translation is a prefix of another.
	for i := 1; i < len(p.matchers); i++ {
		for j := i; j > 0 && len(p.matchers[j].prefix) > len(p.matchers[j-1].prefix); j-- {
			p.matchers[j], p.matchers[j-1] = p.matchers[j-1], p.matchers[j]
		}
	}
	return p
}

func (p *Phrases) has(kind models.RelationKind, prefix string) bool {
	for _, m := range p.matchers {
		if m.kind == kind && m.prefix == prefix {
			return true
		}
	}
	return false
}

// Heading returns the translated status section heading.
func (p *Phrases) Heading() string { return p.heading }

// Translations returns the table the phrases were built from.
func (p *Phrases) Translations() translate.Table { return p.tr }

var (
	mdLinkTargetRe  = regexp.MustCompile(`\]\(([^)\s]+)\)`)
	rstLinkTargetRe = regexp.MustCompile(`<([^>\s]+)>`)
	bareTargetRe    = regexp.MustCompile(`(\d{4,}-[^\s/\\]+\.(?:md|rst))`)
	leadingDigitsRe = regexp.MustCompile(`^(\d+)`)
)

// Match parses a status line such as "Supersedes [Use Go](0001-use-go.md)".
// The returned link has no Source set.
func (p *Phrases) Match(line string) (models.Link, bool) {
	trimmed := strings.TrimSpace(line)
	for _, m := range p.matchers {
		if !strings.HasPrefix(trimmed, m.prefix) {
			continue
		}
		rest := trimmed[len(m.prefix):]
		target := linkTarget(rest)
		if target == "" {
			continue
		}
		return models.Link{
			Kind:       m.kind,
			Direction:  m.direction,
			Target:     RecordID(target),
			TargetPath: target,
			Line:       trimmed,
		}, true
	}
	return models.Link{}, false
}

func linkTarget(s string) string {
	for _, re := range []*regexp.Regexp{mdLinkTargetRe, rstLinkTargetRe, bareTargetRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

// RecordID returns the numeric prefix of the final path element of name, or
// 0 when it has none.
func RecordID(name string) int {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	m := leadingDigitsRe.FindString(base)
	if m == "" {
		return 0
	}
	id := 0
	for _, c := range m {
		id = id*10 + int(c-'0')
		if id > 1<<30 {
			return 0
		}
	}
	return id
}
