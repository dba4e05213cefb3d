// Package workspace locates the record directory of a project and resolves
// the template, language and translation settings that apply to it.
package workspace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/translate"
)

// Indicator files and directories, checked in this order in every directory
// from the start directory up to the file system root.
const (
	ADRDirFile = ".adr-dir"
	ConfigFile = ".decisionrecords-config"
)

var indicatorDirs = [][]string{{"doc", "adr"}, {"doc", "decision_records"}}

const (
	// InternalTemplate names the built-in template.
	InternalTemplate = "INTERNAL"
	DefaultLanguage  = "en"
)

// Settings is the resolved configuration of one workspace.
type Settings struct {
	// Root is the directory holding the indicator that was found.
	Root string
	// Indicator is the path of that indicator.
	Indicator     string
	RecordDir     string
	TemplateDir   string
	TemplateName  string
	Language      string
	Format        models.Format
	Template      string
	Translations  translate.Table
	DefaultStatus models.Status
}

// Defaults returns the settings used when an indicator overrides nothing.
func Defaults(root string) *Settings {
	return &Settings{
		Root:          root,
		RecordDir:     root,
		TemplateDir:   root,
		TemplateName:  InternalTemplate,
		Language:      DefaultLanguage,
		Format:        models.FormatMarkdown,
		Translations:  translate.Table{},
		DefaultStatus: models.StatusApproved,
	}
}

// Discover walks from start towards the file system root and returns the
// settings of the first workspace found. It fails with apperr.ErrNotConfigured
// when no directory carries an indicator.
func Discover(start string) (*Settings, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", start, err)
	}
	for {
		s, err := probe(dir)
		if err != nil || s != nil {
			return s, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("workspace: searched up from %s: %w", start, apperr.ErrNotConfigured)
		}
		dir = parent
	}
}

// probe checks one directory for each indicator. A nil Settings and nil
// error mean nothing was found there.
func probe(dir string) (*Settings, error) {
	if p := filepath.Join(dir, ADRDirFile); isFile(p) {
		return loadADRDir(dir, p)
	}
	if p := filepath.Join(dir, ConfigFile); isFile(p) {
		return loadConfig(dir, p)
	}
	for _, parts := range indicatorDirs {
		p := filepath.Join(append([]string{dir}, parts...)...)
		if isDir(p) {
			s := Defaults(dir)
			s.Indicator = p
			s.RecordDir = p
			return s.resolve()
		}
	}
	return nil, nil
}

func loadADRDir(root, path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	var rel string
	for _, line := range splitLines(data) {
		if line == "" {
			continue
		}
		if rel != "" {
			return nil, fmt.Errorf("workspace: %s holds more than one path: %w", path, apperr.ErrInvalidConfig)
		}
		rel = line
	}
	s := Defaults(root)
	s.Indicator = path
	s.RecordDir = joinConfigPath(root, rel)
	return s.resolve()
}

func loadConfig(root, path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	s := Defaults(root)
	s.Indicator = path
	customTemplates := false
	for _, line := range splitLines(data) {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "records":
			s.RecordDir = joinConfigPath(root, value)
		case "language":
			s.Language = value
		case "templateDir":
			s.TemplateDir = joinConfigPath(root, value)
			customTemplates = true
		case "template":
			s.TemplateName = value
		case "fileType":
			f := models.Format(value)
			if !f.Valid() {
				return nil, fmt.Errorf("workspace: %s: fileType %q: %w", path, value, apperr.ErrInvalidConfig)
			}
			s.Format = f
		case "defaultProposed":
			if value == "true" {
				s.DefaultStatus = models.StatusProposed
			}
		}
	}
	s.Translations.Merge(BuiltinTranslations(s.Language))
	if customTemplates {
		if err := s.loadTemplateDir(); err != nil {
			return nil, err
		}
	}
	return s.resolve()
}

// resolve fills in the built-in template when none was loaded from disk.
func (s *Settings) resolve() (*Settings, error) {
	if s.Template == "" {
		s.Template = BuiltinTemplateOrDefault(s.Language, s.Format)
	}
	return s, nil
}

// TemplateCandidates lists the template files tried in order: full
// language, short language, then no language.
func (s *Settings) TemplateCandidates() []string {
	short := ShortLanguage(s.Language)
	names := []string{fmt.Sprintf("%s.%s.%s", s.TemplateName, s.Language, s.Format)}
	if short != s.Language {
		names = append(names, fmt.Sprintf("%s.%s.%s", s.TemplateName, short, s.Format))
	}
	names = append(names, fmt.Sprintf("%s.%s", s.TemplateName, s.Format))
	for i, n := range names {
		names[i] = filepath.Join(s.TemplateDir, n)
	}
	return names
}

// translationFiles lists the .ref files merged in order, so the most
// specific language wins.
func (s *Settings) translationFiles() []string {
	short := ShortLanguage(s.Language)
	names := []string{s.TemplateName + ".ref"}
	names = append(names, fmt.Sprintf("%s.%s.ref", s.TemplateName, short))
	if short != s.Language {
		names = append(names, fmt.Sprintf("%s.%s.ref", s.TemplateName, s.Language))
	}
	for i, n := range names {
		names[i] = filepath.Join(s.TemplateDir, n)
	}
	return names
}

func (s *Settings) loadTemplateDir() error {
	for _, p := range s.TemplateCandidates() {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("workspace: read template: %w", err)
		}
		s.Template = strings.Join(splitRawLines(data), "\n") + "\n"
		break
	}
	for _, p := range s.translationFiles() {
		tr, err := ReadTranslations(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		s.Translations.Merge(tr)
	}
	return nil
}

var (
	shortLanguageRe = regexp.MustCompile(`^([a-zA-Z]+)[-_][a-zA-Z]+$`)
	referenceRe     = regexp.MustCompile(`^(.*)="(.*)"`)
)

// ShortLanguage strips the region from a language code ("en_GB" → "en").
func ShortLanguage(lang string) string {
	if m := shortLanguageRe.FindStringSubmatch(lang); m != nil {
		return m[1]
	}
	return lang
}

// ReadTranslations parses a translation file made of `phrase="translation"`
// lines. Lines in any other shape are ignored.
func ReadTranslations(path string) (translate.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: read translations: %w", err)
	}
	return ParseTranslations(data), nil
}

// ParseTranslations is ReadTranslations on in-memory content.
func ParseTranslations(data []byte) translate.Table {
	tr := translate.Table{}
	for _, line := range splitLines(data) {
		if m := referenceRe.FindStringSubmatch(line); m != nil {
			tr[m[1]] = m[2]
		}
	}
	return tr
}

// joinConfigPath resolves a path written with either separator against root.
func joinConfigPath(root, rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return root
	}
	rel = filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/"))
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(root, rel)
}

// splitLines splits on CR, LF or CRLF, trimming surrounding whitespace.
func splitLines(data []byte) []string {
	lines := splitRawLines(data)
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// splitRawLines splits on CR, LF or CRLF and drops a trailing empty line.
func splitRawLines(data []byte) []string {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
