package statusblock

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/storage"
)

const mdDoc = "# 1. Foo\n\nDate: 2026-10-14\n\n## Status\n\nApproved\n\n## Context\n\nThis is the context.\n"

const rstDoc = `#######
1. Foo
#######

Date: 2026-10-14

******
Status
******

Approved

*******
Context
*******

This is the context.
`

const injected = "Supersedes [0001](0001-foo.md)"

func rewrite(t *testing.T, src string, dialect models.Format, e Edit) (string, Result) {
	t.Helper()
	out, res, err := Rewrite([]byte(src), dialect, e)
	require.NoError(t, err)
	return string(out), res
}

func TestRewrite_MarkdownAppend(t *testing.T) {
	out, res := rewrite(t, mdDoc, models.FormatMarkdown, Edit{Heading: "Status", Inject: injected})

	assert.True(t, res.Found)
	assert.True(t, res.Injected)
	assert.Equal(t,
		"# 1. Foo\n\nDate: 2026-10-14\n\n## Status\n\nApproved\n\n"+injected+"\n\n## Context\n\nThis is the context.\n",
		out)
	assert.NotContains(t, out, "\n\n\n")
}

func TestRewrite_MarkdownStartOfBlock(t *testing.T) {
	out, _ := rewrite(t, mdDoc, models.FormatMarkdown, Edit{Heading: "Status", Inject: "Proposed", StartOfBlock: true})

	assert.Contains(t, out, "## Status\n\nProposed\n\nApproved\n\n## Context\n")
}

func TestRewrite_MarkdownReplaceDiscardsContent(t *testing.T) {
	src := "## Status\n\nApproved\n\nAmends [A](0001-a.md)\n\n## Context\n\nText\n"
	out, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: "Rejected", ReplaceBlock: true})

	assert.True(t, res.Injected)
	assert.Equal(t, "## Status\n\nRejected\n\n## Context\n\nText\n", out)
}

func TestRewrite_PruneStatusWords(t *testing.T) {
	out, _ := rewrite(t, mdDoc, models.FormatMarkdown, Edit{
		Heading: "Status",
		Inject:  "Superseded by [0002](0002-bar.md)",
		Prune:   []string{"Approved", "Proposed"},
	})

	assert.NotContains(t, out, "Approved")
	assert.Contains(t, out, "## Status\n\nSuperseded by [0002](0002-bar.md)\n\n## Context\n")
}

func TestRewrite_PruneAppliesToWholeDocument(t *testing.T) {
	src := "# 1. Foo\n\n  Approved elsewhere\n\n## Status\n\nApproved\n\n## Context\n"
	out, _ := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: "X", Prune: []string{"Approved"}})

	assert.Equal(t, "# 1. Foo\n\n## Status\n\nX\n\n## Context\n", out)
}

func TestRewrite_RepeatedAppendDuplicates(t *testing.T) {
	e := Edit{Heading: "Status", Inject: injected}
	once, _ := rewrite(t, mdDoc, models.FormatMarkdown, e)
	twice, _ := rewrite(t, once, models.FormatMarkdown, e)

	assert.Equal(t, 2, strings.Count(twice, injected))
	assert.Contains(t, twice, "Approved\n\n"+injected+"\n\n"+injected+"\n\n## Context")
}

func TestRewrite_NoHeadingPassesThrough(t *testing.T) {
	src := "# 1. Foo\n\n\n\nBody without a status section.\n"
	out, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: injected})

	assert.False(t, res.Found)
	assert.False(t, res.Injected)
	assert.Equal(t, "# 1. Foo\n\nBody without a status section.\n", out)
}

func TestRewrite_UnclosedBlockIsNotInjected(t *testing.T) {
	src := "# 1. Foo\n\n## Status\n\nApproved\n"
	out, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: injected})

	assert.True(t, res.Found)
	assert.False(t, res.Injected)
	assert.Equal(t, src, out)
}

func TestRewrite_TranslatedHeading(t *testing.T) {
	src := "## Statut\n\nApprouvé\n\n## Contexte\n"
	out, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Statut", Inject: "Remplace [A](0001-a.md)"})
	assert.True(t, res.Injected)
	assert.Contains(t, out, "Approuvé\n\nRemplace [A](0001-a.md)\n\n## Contexte")

	_, res = rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: "x"})
	assert.False(t, res.Found, "English heading must not match a translated document")
}

func TestRewrite_HeadingMustMatchWholeLine(t *testing.T) {
	src := "## Status of the migration\n\nText\n\n## Context\n"
	_, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: "x"})
	assert.False(t, res.Found)
}

func TestRewrite_RSTAppend(t *testing.T) {
	out, res := rewrite(t, rstDoc, models.FormatRST, Edit{Heading: "Status", Inject: "Amends :doc:`Foo <0001-foo.rst>`"})

	assert.True(t, res.Injected)
	assert.Contains(t, out, "******\nStatus\n******\n\nApproved\n\nAmends :doc:`Foo <0001-foo.rst>`\n\n*******\nContext\n*******\n")
	assert.True(t, strings.HasPrefix(out, "#######\n1. Foo\n#######\n"))
}

func TestRewrite_RSTStartOfBlock(t *testing.T) {
	out, _ := rewrite(t, rstDoc, models.FormatRST, Edit{Heading: "Status", Inject: "Proposed", StartOfBlock: true})

	assert.Contains(t, out, "******\nStatus\n******\n\nProposed\n\nApproved\n")
}

func TestRewrite_RSTReplace(t *testing.T) {
	out, _ := rewrite(t, rstDoc, models.FormatRST, Edit{Heading: "Status", Inject: "Rejected", ReplaceBlock: true})

	assert.Contains(t, out, "******\nStatus\n******\n\nRejected\n\n*******\nContext\n")
	assert.NotContains(t, out, "Approved")
}

func TestRewrite_CRLFNormalised(t *testing.T) {
	src := strings.ReplaceAll(mdDoc, "\n", "\r\n")
	out, res := rewrite(t, src, models.FormatMarkdown, Edit{Heading: "Status", Inject: injected})

	assert.True(t, res.Injected)
	assert.NotContains(t, out, "\r")
}

func TestRewrite_UnsupportedDialect(t *testing.T) {
	_, _, err := Rewrite([]byte(mdDoc), models.Format("txt"), Edit{Heading: "Status", Inject: "x"})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestApply_RewritesStoredRecord(t *testing.T) {
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Write("0001-foo.md", []byte(mdDoc)))

	res, err := Apply(store, "0001-foo.md", Edit{Heading: "Status", Inject: injected})
	require.NoError(t, err)
	assert.True(t, res.Injected)

	data, err := store.Read("0001-foo.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Approved\n\n"+injected+"\n\n## Context")
}

func TestApply_UnsupportedSuffixLeavesFileAlone(t *testing.T) {
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Write("0001-foo.txt", []byte(mdDoc)))

	_, err = Apply(store, "0001-foo.txt", Edit{Heading: "Status", Inject: injected})
	require.ErrorIs(t, err, apperr.ErrUnsupportedFormat)

	data, _ := store.Read("0001-foo.txt")
	assert.Equal(t, mdDoc, string(data))
}

func TestApply_MissingFile(t *testing.T) {
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = Apply(store, "0009-missing.md", Edit{Heading: "Status", Inject: injected})
	assert.Error(t, err)
}
