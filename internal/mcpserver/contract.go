package mcpserver

// RecordFormatContract describes how decision records are laid out and how
// relation lines are written, so LLM clients can read and cite them.
const RecordFormatContract = `# Decision Record Format

Decision records live in one flat directory. Each record is a single file.

## File names

- ` + "`" + `NNNN-slug.md` + "`" + ` or ` + "`" + `NNNN-slug.rst` + "`" + `: a zero-padded identifier of at least four digits,
  a dash, then the lowercased title with every run of other characters replaced by one dash.
- Identifiers are assigned by the tool (highest existing identifier plus one). Never pick one yourself;
  call ` + "`" + `new_record` + "`" + ` instead.

## Structure (markdown)

` + "```" + `markdown
# 3. Use PostgreSQL

Date: 2026-10-14

## Status

Approved

Supersedes [Use SQLite](0002-use-sqlite.md)

## Context
...
` + "```" + `

The "Status" section (translated in non-English workspaces) holds the status word followed by
relation lines. It ends at the next heading.

## Relation lines

| Relation   | Line in the newer record | Line in the older record |
|------------|--------------------------|--------------------------|
| supersede  | Supersedes [old]          | Superseded by [new]      |
| deprecate  | Deprecates [old]          | Deprecated by [new]      |
| amend      | Amends [old]              | Amended by [new]         |
| link       | Linked to [other]         | Linked to [other]        |

- Superseding or deprecating removes the Approved/Proposed word from the older record.
- A link may carry a reason: ` + "`" + `Linked to [other](...) for reason cost` + "`" + `.
- Always change relations through the tools so both records stay in step. Use
  ` + "`" + `check_records` + "`" + ` to find one-sided relations.
`
