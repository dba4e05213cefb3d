package recordservice

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/storage"
	"github.com/starford/decisionrecords/internal/translate"
	"github.com/starford/decisionrecords/internal/workspace"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) }

const shortTemplate = "# NUMBER. TITLE\n\nDate: DATE\n\n## Status\n\nSTATUS\n\n## Context\n\nContext.\n"

func newService(t *testing.T, cfg Config, files map[string]string) (*Service, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, store.Write(name, []byte(content)))
	}
	if cfg.Template == "" {
		cfg.Template = shortTemplate
	}
	return NewService(store, cfg, WithClock(fixedNow)), store
}

func read(t *testing.T, s storage.Provider, name string) string {
	t.Helper()
	data, err := s.Read(name)
	require.NoError(t, err)
	return string(data)
}

func TestNew_FirstRecord(t *testing.T) {
	svc, store := newService(t, Config{}, nil)

	rec, err := svc.New(context.Background(), NewRequest{Title: "Use Go"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ID)
	assert.Equal(t, "0001-use-go.md", rec.Path)
	assert.Equal(t, "use-go", rec.Slug)
	assert.Equal(t, "Approved", rec.Status)
	assert.Equal(t,
		"# 1. Use Go\n\nDate: 2026-10-14\n\n## Status\n\nApproved\n\n## Context\n\nContext.\n",
		read(t, store, "0001-use-go.md"))
}

func TestNew_NextIdentifierIsMaxPlusOne(t *testing.T) {
	svc, store := newService(t, Config{}, map[string]string{
		"0001-a.md":  "a",
		"0007-b.md":  "b",
		"0003-c.rst": "c",
	})

	rec, err := svc.New(context.Background(), NewRequest{Title: "Next one"})
	require.NoError(t, err)
	assert.Equal(t, 8, rec.ID)
	assert.Regexp(t, regexp.MustCompile(`^\d{4,}-.+\.(md|rst)$`), rec.Path)
	assert.Equal(t, "0008-next-one.md", rec.Path)
	assert.Contains(t, read(t, store, rec.Path), "# 8. Next one\n")
}

func TestNew_BuiltinTemplateHasNoMarkersLeft(t *testing.T) {
	for _, f := range models.Formats {
		svc, store := newService(t, Config{Format: f, Template: workspace.BuiltinTemplateOrDefault("en", f)}, nil)

		rec, err := svc.New(context.Background(), NewRequest{Title: "Plain"})
		require.NoError(t, err)
		content := read(t, store, rec.Path)
		for _, marker := range []string{"NUMBER", "TITLE", "DATE", "STATUS"} {
			assert.NotContains(t, content, marker, f)
		}
	}
}

func TestNew_StatusSelection(t *testing.T) {
	ctx := context.Background()

	svc, store := newService(t, Config{}, nil)
	rec, err := svc.New(ctx, NewRequest{Title: "P", Proposed: true})
	require.NoError(t, err)
	assert.Contains(t, read(t, store, rec.Path), "## Status\n\nProposed\n")

	svc, store = newService(t, Config{DefaultStatus: models.StatusProposed}, nil)
	rec, err = svc.New(ctx, NewRequest{Title: "D"})
	require.NoError(t, err)
	assert.Contains(t, read(t, store, rec.Path), "## Status\n\nProposed\n")

	rec, err = svc.New(ctx, NewRequest{Title: "A", Approved: true})
	require.NoError(t, err)
	assert.Contains(t, read(t, store, rec.Path), "## Status\n\nApproved\n")
}

func TestNew_TranslatedStatus(t *testing.T) {
	tr := translate.Table{"Approved": "Accepté"}
	svc, store := newService(t, Config{Translations: tr}, nil)

	rec, err := svc.New(context.Background(), NewRequest{Title: "Décision"})
	require.NoError(t, err)
	assert.Equal(t, "0001-decision.md", rec.Path)
	assert.Contains(t, read(t, store, rec.Path), "\nAccepté\n")
	assert.Equal(t, "Approved", rec.Status)
}

func TestNew_InvalidRequests(t *testing.T) {
	svc, store := newService(t, Config{}, map[string]string{"0001-a.md": shortTemplate})
	ctx := context.Background()

	for name, req := range map[string]NewRequest{
		"empty title":    {},
		"both statuses":  {Title: "x", Proposed: true, Approved: true},
		"duplicate ids":  {Title: "x", Supersedes: []int{1, 1}},
		"zero amends id": {Title: "x", Amends: []int{0}},
	} {
		_, err := svc.New(ctx, req)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, name)
	}
	items, err := store.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "0001-a.md", items[0].Name)
}

func TestNew_WithRelations(t *testing.T) {
	old := "# 1. Use Rust\n\nDate: 2026-01-01\n\n## Status\n\nApproved\n\n## Context\n\nContext.\n"
	other := "# 2. Logging\n\nDate: 2026-01-02\n\n## Status\n\nApproved\n\n## Context\n\nContext.\n"
	svc, store := newService(t, Config{}, map[string]string{
		"0001-use-rust.md": old,
		"0002-logging.md":  other,
	})

	rec, err := svc.New(context.Background(), NewRequest{Title: "Use Go", Supersedes: []int{1}, Links: []int{2}})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ID)

	assert.Equal(t,
		"# 3. Use Go\n\nDate: 2026-10-14\n\n## Status\n\nApproved\n\n"+
			"Supersedes [Use Rust](0001-use-rust.md)\n\nLinked to [Logging](0002-logging.md)\n\n## Context\n\nContext.\n",
		read(t, store, "0003-use-go.md"))

	superseded := read(t, store, "0001-use-rust.md")
	assert.NotContains(t, superseded, "Approved")
	assert.Contains(t, superseded, "## Status\n\nSuperseded by [Use Go](0003-use-go.md)\n\n## Context")

	linked := read(t, store, "0002-logging.md")
	assert.Contains(t, linked, "Approved\n\nLinked to [Use Go](0003-use-go.md)\n\n## Context")
	assert.NotContains(t, linked, "for reason")
}

func TestNew_RelationFailureKeepsRecord(t *testing.T) {
	svc, store := newService(t, Config{}, nil)

	rec, err := svc.New(context.Background(), NewRequest{Title: "Orphan", Amends: []int{5}})
	require.Error(t, err)
	var te *apperr.TargetError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 5, te.ID)
	require.NotNil(t, rec)
	assert.Contains(t, read(t, store, rec.Path), "# 1. Orphan")
}

func TestRender_SinglePass(t *testing.T) {
	got := Render("NUMBER|TITLE|DATE|STATUS|NUMBER", TemplateValues{
		ID:     12,
		Title:  "STATUS of DATE handling",
		Date:   fixedNow(),
		Status: "Proposed",
	})
	assert.Equal(t, "12|STATUS of DATE handling|2026-10-14|Proposed|12", got)
}

func TestApprove_ReplacesStatusWord(t *testing.T) {
	svc, store := newService(t, Config{}, map[string]string{
		"0001-a.md": "# 1. A\n\n## Status\n\nProposed\n\nAmends [B](0002-b.md)\n\n## Context\n",
		"0002-b.md": "# 2. B\n\n## Status\n\nProposed\n\n## Context\n",
	})

	require.NoError(t, svc.Approve(context.Background(), 1, 2))

	assert.Equal(t, "# 1. A\n\n## Status\n\nApproved\n\nAmends [B](0002-b.md)\n\n## Context\n", read(t, store, "0001-a.md"))
	assert.Equal(t, "# 2. B\n\n## Status\n\nApproved\n\n## Context\n", read(t, store, "0002-b.md"))
}

func TestPropose_Translated(t *testing.T) {
	tr := translate.Table{"Status": "Statut", "Approved": "Accepté", "Proposed": "Proposé"}
	svc, store := newService(t, Config{Translations: tr}, map[string]string{
		"0001-a.md": "# 1. A\n\n## Statut\n\nAccepté\n\n## Contexte\n",
	})

	require.NoError(t, svc.Propose(context.Background(), 1))
	assert.Equal(t, "# 1. A\n\n## Statut\n\nProposé\n\n## Contexte\n", read(t, store, "0001-a.md"))
}

func TestSetStatus_Errors(t *testing.T) {
	svc, store := newService(t, Config{}, map[string]string{
		"0001-a.md": "# 1. A\n\n## Status\n\nProposed\n\n## Context\n",
	})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Approve(ctx), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.SetStatus(ctx, models.StatusOther, 1), apperr.ErrInvalidArgument)

	err := svc.Approve(ctx, 1, 4)
	var te *apperr.TargetError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 4, te.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, read(t, store, "0001-a.md"), "## Status\n\nApproved\n")
}

func TestListAndGet(t *testing.T) {
	svc, _ := newService(t, Config{}, map[string]string{
		"0002-b.md":  "# 2. Bee\n\n## Status\n\nApproved\n\nSupersedes [A](0001-a.rst)\n\n## Context\n",
		"0001-a.rst": "####\n1. A\n####\n\n******\nStatus\n******\n\nSuperseded by [Bee](0002-b.md)\n\n*******\nContext\n*******\n",
		"notes.md":   "not a record",
	})
	ctx := context.Background()

	recs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].ID)
	assert.Equal(t, models.FormatRST, recs[0].Format)
	assert.Equal(t, "1. A", recs[0].Title)
	assert.Equal(t, "Bee", recs[1].Title)
	assert.Equal(t, "Approved", recs[1].Status)

	d, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", d.Slug)
	require.Len(t, d.Links, 1)
	assert.Equal(t, models.Link{
		Source:     2,
		Kind:       models.RelationSupersedes,
		Direction:  models.DirectionTo,
		Target:     1,
		TargetPath: "0001-a.rst",
		Line:       "Supersedes [A](0001-a.rst)",
	}, d.Links[0])

	_, err = svc.Get(ctx, 9)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
