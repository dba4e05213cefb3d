package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
)

// Init defaults.
const (
	DefaultRecordDir    = "."
	DefaultTemplateDir  = ".template"
	DefaultTemplateName = "template"
)

// InitOptions controls Init. Relative directories are resolved against Root.
type InitOptions struct {
	Root            string
	RecordDir       string
	TemplateDir     string
	TemplateName    string
	Language        string
	Format          models.Format
	DefaultProposed bool
	// ADR writes a bare .adr-dir indicator instead of a full config file.
	ADR   bool
	Force bool
}

func (o *InitOptions) setDefaults() {
	if o.Root == "" {
		o.Root = "."
	}
	if o.RecordDir == "" {
		o.RecordDir = DefaultRecordDir
	}
	if o.TemplateDir == "" {
		o.TemplateDir = DefaultTemplateDir
	}
	if o.TemplateName == "" {
		o.TemplateName = DefaultTemplateName
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	if o.Format == "" {
		o.Format = models.FormatMarkdown
	}
}

// Validate checks the options after defaults are applied.
func (o *InitOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Root, validation.Required),
		validation.Field(&o.TemplateName, validation.Required, validation.By(noPathSeparator)),
		validation.Field(&o.Language, validation.Required, validation.By(noPathSeparator)),
		validation.Field(&o.Format, validation.Required, validation.In(models.FormatMarkdown, models.FormatRST)),
	)
}

func noPathSeparator(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) {
		return errors.New("must not contain a path separator")
	}
	return nil
}

// Init bootstraps a workspace in opts.Root and returns its settings as
// Discover would see them. An existing indicator is only replaced with
// opts.Force.
func Init(opts InitOptions) (*Settings, error) {
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("workspace: init: %w: %v", apperr.ErrInvalidArgument, err)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace: init: %w", err)
	}

	indicator := filepath.Join(root, ConfigFile)
	if opts.ADR {
		indicator = filepath.Join(root, ADRDirFile)
	}
	if isFile(indicator) && !opts.Force {
		return nil, fmt.Errorf("workspace: init: %s: %w", indicator, apperr.ErrAlreadyExists)
	}

	recordDir := joinConfigPath(root, opts.RecordDir)
	relRecords, err := relSlash(root, recordDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: init: create record dir: %w", err)
	}

	if opts.ADR {
		if err := writeIndicator(indicator, relRecords+"\n"); err != nil {
			return nil, err
		}
		return Discover(root)
	}

	templateDir := joinConfigPath(root, opts.TemplateDir)
	relTemplates, err := relSlash(root, templateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(templateDir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: init: create template dir: %w", err)
	}
	if err := writeDefaultTemplate(templateDir, opts); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "records=%s\n", relRecords)
	fmt.Fprintf(&b, "templateDir=%s\n", relTemplates)
	fmt.Fprintf(&b, "language=%s\n", opts.Language)
	fmt.Fprintf(&b, "template=%s\n", opts.TemplateName)
	fmt.Fprintf(&b, "fileType=%s\n", opts.Format)
	if opts.DefaultProposed {
		b.WriteString("defaultProposed=true\n")
	}
	if err := writeIndicator(indicator, b.String()); err != nil {
		return nil, err
	}
	return Discover(root)
}

// writeDefaultTemplate writes the built-in template (and its translations)
// unless a template for the language is already present.
func writeDefaultTemplate(dir string, opts InitOptions) error {
	s := &Settings{TemplateDir: dir, TemplateName: opts.TemplateName, Language: opts.Language, Format: opts.Format}
	candidates := s.TemplateCandidates()
	for _, p := range candidates {
		if isFile(p) {
			return nil
		}
	}
	tmpl, err := BuiltinTemplate(opts.Language, opts.Format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(candidates[0], []byte(tmpl), 0o644); err != nil {
		return fmt.Errorf("workspace: init: write template: %w", err)
	}
	if data, ok := builtinTranslationFile(opts.Language); ok {
		ref := filepath.Join(dir, fmt.Sprintf("%s.%s.ref", opts.TemplateName, opts.Language))
		if err := os.WriteFile(ref, data, 0o644); err != nil {
			return fmt.Errorf("workspace: init: write translations: %w", err)
		}
	}
	return nil
}

func writeIndicator(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: init: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func relSlash(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("workspace: init: %w", err)
	}
	return filepath.ToSlash(rel), nil
}
