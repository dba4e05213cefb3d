// Package recordservice creates decision records and changes their status.
package recordservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/linker"
	"github.com/starford/decisionrecords/internal/metrics"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/record"
	"github.com/starford/decisionrecords/internal/statusblock"
	"github.com/starford/decisionrecords/internal/storage"
	"github.com/starford/decisionrecords/internal/translate"
)

// DateLayout is the layout of the DATE template marker.
const DateLayout = "2006-01-02"

// Config is the resolved workspace configuration the service works with.
type Config struct {
	Format        models.Format
	Template      string
	Translations  translate.Table
	DefaultStatus models.Status
}

// Service coordinates record creation, relations and status changes.
type Service struct {
	store   storage.Provider
	cfg     Config
	linker  *linker.Linker
	phrases *parser.Phrases
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for the DATE marker.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a service for the record directory behind store.
func NewService(store storage.Provider, cfg Config, opts ...Option) *Service {
	if cfg.Format == "" {
		cfg.Format = models.FormatMarkdown
	}
	if cfg.DefaultStatus == models.StatusOther {
		cfg.DefaultStatus = models.StatusApproved
	}
	s := &Service{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	s.phrases = parser.NewPhrases(cfg.Translations)
	s.linker = linker.New(store, cfg.Format, cfg.Translations,
		linker.WithLogger(s.logger), linker.WithMetrics(s.metrics))
	return s
}

// Linker returns the linker bound to the same record directory.
func (s *Service) Linker() *linker.Linker { return s.linker }

// Phrases returns the relation phrase matchers for the workspace language.
func (s *Service) Phrases() *parser.Phrases { return s.phrases }

// NewRequest describes a record to create.
type NewRequest struct {
	Title      string
	Supersedes []int
	Deprecates []int
	Amends     []int
	Links      []int
	Proposed   bool
	Approved   bool
}

// Validate checks the request fields.
func (r NewRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required),
		validation.Field(&r.Proposed, validation.When(r.Approved, validation.Empty.Error("conflicts with approved"))),
	)
	if err != nil {
		return fmt.Errorf("recordservice: %w: %v", apperr.ErrInvalidArgument, err)
	}
	return nil
}

// TemplateValues fills the template markers.
type TemplateValues struct {
	ID     int
	Title  string
	Date   time.Time
	Status string
}

// Render replaces every NUMBER, TITLE, DATE and STATUS marker in tmpl. All
// markers are substituted in one pass so a title holding a marker word is
// written as is.
func Render(tmpl string, v TemplateValues) string {
	return strings.NewReplacer(
		"NUMBER", strconv.Itoa(v.ID),
		"TITLE", v.Title,
		"DATE", v.Date.Format(DateLayout),
		"STATUS", v.Status,
	).Replace(tmpl)
}

// New creates the next record and writes any relations it declares. The
// record is created under the directory lock; link failures are returned
// after the file exists, together with the record.
func (s *Service) New(ctx context.Context, req NewRequest) (*models.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	status := s.cfg.DefaultStatus
	switch {
	case req.Proposed:
		status = models.StatusProposed
	case req.Approved:
		status = models.StatusApproved
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	id := record.NextID(s.store)
	relations := []struct {
		kind models.RelationKind
		ids  []int
	}{
		{models.RelationSupersedes, req.Supersedes},
		{models.RelationDeprecates, req.Deprecates},
		{models.RelationAmends, req.Amends},
		{models.RelationLinks, req.Links},
	}
	for _, r := range relations {
		if len(r.ids) == 0 {
			continue
		}
		if err := linker.Validate(r.kind, id, r.ids); err != nil {
			return nil, err
		}
	}

	name := record.Filename(id, req.Title, s.cfg.Format)
	created := s.now()
	content := Render(s.cfg.Template, TemplateValues{
		ID:     id,
		Title:  req.Title,
		Date:   created,
		Status: status.Label(s.cfg.Translations),
	})
	if err := s.store.Create(name, []byte(content)); err != nil {
		return nil, err
	}
	s.metrics.RecordCreated()
	s.logger.Info("recordservice: created", slog.Int("id", id), slog.String("record", name))

	rec := &models.Record{
		ID:        id,
		Slug:      slugOf(name),
		Format:    s.cfg.Format,
		Path:      name,
		Title:     req.Title,
		Status:    status.String(),
		CreatedAt: created,
	}
	for _, r := range relations {
		if len(r.ids) == 0 {
			continue
		}
		if err := s.linker.RelateLocked(r.kind, id, r.ids, ""); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Approve marks each record approved.
func (s *Service) Approve(ctx context.Context, ids ...int) error {
	return s.SetStatus(ctx, models.StatusApproved, ids...)
}

// Propose marks each record proposed.
func (s *Service) Propose(ctx context.Context, ids ...int) error {
	return s.SetStatus(ctx, models.StatusProposed, ids...)
}

// SetStatus replaces the status word of each record with status. The
// existing Approved and Proposed lines are removed and the new word is
// written at the top of the status block. Records are handled in order and
// the first failure is returned as an *apperr.TargetError.
func (s *Service) SetStatus(ctx context.Context, status models.Status, ids ...int) error {
	if status == models.StatusOther {
		return fmt.Errorf("recordservice: %w: status must be approved or proposed", apperr.ErrInvalidArgument)
	}
	err := validation.Validate(ids, validation.Required, validation.Each(validation.Required, validation.Min(1)))
	if err != nil {
		return fmt.Errorf("recordservice: %w: ids %v", apperr.ErrInvalidArgument, err)
	}

	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	tr := s.cfg.Translations
	edit := statusblock.Edit{
		Heading:      tr.Lookup("Status"),
		Inject:       status.Label(tr),
		StartOfBlock: true,
		Prune:        []string{models.StatusApproved.Label(tr), models.StatusProposed.Label(tr)},
	}
	for _, id := range ids {
		name, err := record.Find(s.store, id)
		if err != nil {
			return apperr.Target(id, err)
		}
		res, err := statusblock.Apply(s.store, name, edit)
		if err != nil {
			s.metrics.Rewrite(metrics.ResultError)
			return apperr.Target(id, err)
		}
		if !res.Injected {
			s.metrics.Rewrite(metrics.ResultNoop)
			s.logger.Warn("recordservice: no status block", slog.String("record", name))
			continue
		}
		s.metrics.Rewrite(metrics.ResultInjected)
		s.logger.Info("recordservice: status changed", slog.Int("id", id), slog.String("status", status.String()))
	}
	return nil
}

// Detail is a record with its content and parsed relations.
type Detail struct {
	models.Record
	Content string        `json:"content"`
	Links   []models.Link `json:"links"`
}

// List returns every record in the directory ordered by identifier.
func (s *Service) List(_ context.Context) ([]models.Record, error) {
	items, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(items))
	for _, it := range items {
		id := parser.RecordID(it.Name)
		if id == 0 {
			continue
		}
		data, err := s.store.Read(it.Name)
		if err != nil {
			return nil, err
		}
		rec, _ := s.describe(id, it.Name, data)
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b models.Record) int { return a.ID - b.ID })
	return out, nil
}

// Get returns the record with the given identifier.
func (s *Service) Get(_ context.Context, id int) (*Detail, error) {
	name, err := record.Find(s.store, id)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	rec, links := s.describe(id, name, data)
	return &Detail{Record: rec, Content: string(data), Links: links}, nil
}

func (s *Service) describe(id int, name string, data []byte) (models.Record, []models.Link) {
	format, _ := models.FormatOf(name)
	rec := models.Record{ID: id, Slug: slugOf(name), Format: format, Path: name}
	res, err := parser.Parse(data, format, s.phrases)
	if err != nil {
		return rec, nil
	}
	rec.Title = res.Title
	rec.Status = res.StatusWord
	if res.Status != models.StatusOther {
		rec.Status = res.Status.String()
	}
	for i := range res.Links {
		res.Links[i].Source = id
	}
	return rec, res.Links
}

// slugOf strips the identifier prefix and the suffix from a record name.
func slugOf(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if _, rest, ok := strings.Cut(base, "-"); ok {
		return rest
	}
	return base
}
