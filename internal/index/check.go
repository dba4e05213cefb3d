package index

import (
	"fmt"

	"github.com/starford/decisionrecords/internal/models"
)

// IssueKind classifies a consistency problem.
type IssueKind string

const (
	// IssueMissingReciprocal: the target record has no matching line back.
	IssueMissingReciprocal IssueKind = "missing_reciprocal"
	// IssueDanglingTarget: a relation points at an identifier with no record.
	IssueDanglingTarget IssueKind = "dangling_target"
	// IssueDuplicateID: several files share one identifier.
	IssueDuplicateID IssueKind = "duplicate_id"
	// IssueNoStatusBlock: the record has no status section to write into.
	IssueNoStatusBlock IssueKind = "no_status_block"
)

// Issue is one consistency problem found by Check.
type Issue struct {
	Kind     IssueKind           `json:"kind"`
	Record   int                 `json:"record"`
	Path     string              `json:"path"`
	Target   int                 `json:"target,omitempty"`
	Relation models.RelationKind `json:"relation,omitempty"`
	Line     string              `json:"line,omitempty"`
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueMissingReciprocal:
		return fmt.Sprintf("%s: %q has no reciprocal %s line in record %s", i.Path, i.Line, i.Relation, models.PadID(i.Target))
	case IssueDanglingTarget:
		return fmt.Sprintf("%s: %q points at missing record %s", i.Path, i.Line, models.PadID(i.Target))
	case IssueDuplicateID:
		return fmt.Sprintf("%s: identifier %s is used by more than one file", i.Path, models.PadID(i.Record))
	case IssueNoStatusBlock:
		return fmt.Sprintf("%s: no status section", i.Path)
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Kind)
}

// Check reports relation lines whose counterpart is missing, relations to
// unknown records, identifiers used twice and records without a status
// section. Link lines are their own reciprocal.
func (db *DB) Check() ([]Issue, error) {
	var out []Issue

	rows, err := db.conn.Query(`
		SELECT r.source, r.source_path, r.kind, r.target, r.line,
		       EXISTS (SELECT 1 FROM records t WHERE t.id = r.target) AS target_exists
		FROM relations r
		WHERE NOT EXISTS (
			SELECT 1 FROM relations x
			WHERE x.source = r.target
			  AND x.target = r.source
			  AND x.kind = r.kind
			  AND x.direction = CASE
			      WHEN r.kind = 'links' THEN r.direction
			      WHEN r.direction = 'from' THEN 'to'
			      ELSE 'from' END
		)
		ORDER BY r.source, r.position
	`)
	if err != nil {
		return nil, fmt.Errorf("index: check relations: %w", err)
	}
	for rows.Next() {
		var (
			i      Issue
			kind   string
			exists bool
		)
		if err := rows.Scan(&i.Record, &i.Path, &kind, &i.Target, &i.Line, &exists); err != nil {
			rows.Close()
			return nil, err
		}
		i.Relation = models.RelationKind(kind)
		i.Kind = IssueMissingReciprocal
		if !exists {
			i.Kind = IssueDanglingTarget
		}
		out = append(out, i)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`
		SELECT id, path FROM records
		WHERE id IN (SELECT id FROM records GROUP BY id HAVING count(*) > 1)
		ORDER BY id, path
	`)
	if err != nil {
		return nil, fmt.Errorf("index: check duplicates: %w", err)
	}
	for rows.Next() {
		i := Issue{Kind: IssueDuplicateID}
		if err := rows.Scan(&i.Record, &i.Path); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, i)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`SELECT id, path FROM records WHERE has_block = 0 ORDER BY id, path`)
	if err != nil {
		return nil, fmt.Errorf("index: check status blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		i := Issue{Kind: IssueNoStatusBlock}
		if err := rows.Scan(&i.Record, &i.Path); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
