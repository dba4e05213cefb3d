package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
)

// RecordRow represents a row in the records table.
type RecordRow struct {
	Path      string    `json:"path"`
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	HasBlock  bool      `json:"has_status_block"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertRecord inserts or replaces a record, its FTS entry and its relation
// lines within a transaction.
func (db *DB) UpsertRecord(r RecordRow, body string, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO records (path, id, title, status, has_block, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			id         = excluded.id,
			title      = excluded.title,
			status     = excluded.status,
			has_block  = excluded.has_block,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, r.Path, r.ID, r.Title, r.Status, r.HasBlock, r.Checksum, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, r.Path, r.Title, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM relations WHERE source_path = ?`, r.Path); err != nil {
		return fmt.Errorf("index: clear relations: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO relations (source_path, source, kind, direction, target, target_path, line, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare relation insert: %w", err)
		}
		defer stmt.Close()
		for i, l := range links {
			if _, err := stmt.Exec(r.Path, r.ID, string(l.Kind), string(l.Direction), l.Target, l.TargetPath, l.Line, i); err != nil {
				return fmt.Errorf("index: insert relation: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteRecord removes a record, its FTS entry and its relation lines.
func (db *DB) DeleteRecord(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM relations WHERE source_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM records WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a record, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM records WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const recordColumns = `path, id, title, status, has_block, checksum, updated_at`

func scanRecord(sc interface{ Scan(...any) error }) (RecordRow, error) {
	var r RecordRow
	err := sc.Scan(&r.Path, &r.ID, &r.Title, &r.Status, &r.HasBlock, &r.Checksum, &r.UpdatedAt)
	return r, err
}

// GetRecord returns the record with the lowest path for id.
func (db *DB) GetRecord(id int) (*RecordRow, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ? ORDER BY path LIMIT 1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: record %s: %w", models.PadID(id), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	return &r, nil
}

// ListRecords returns indexed records ordered by identifier. A non-empty
// status filters on the status word.
func (db *DB) ListRecords(status string) ([]RecordRow, error) {
	q := `SELECT ` + recordColumns + ` FROM records`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY id, path`

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list records: %w", err)
	}
	defer rows.Close()
	var out []RecordRow
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const relationColumns = `source, kind, direction, target, target_path, line`

func scanLinks(rows *sql.Rows) ([]models.Link, error) {
	defer rows.Close()
	var out []models.Link
	for rows.Next() {
		var l models.Link
		var kind, dir string
		if err := rows.Scan(&l.Source, &kind, &dir, &l.Target, &l.TargetPath, &l.Line); err != nil {
			return nil, err
		}
		l.Kind = models.RelationKind(kind)
		l.Direction = models.Direction(dir)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Relations returns the relation lines written in record id and the lines
// other records hold about it.
func (db *DB) Relations(id int) (outgoing, incoming []models.Link, err error) {
	rows, err := db.conn.Query(`SELECT `+relationColumns+` FROM relations WHERE source = ? ORDER BY source_path, position`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("index: outgoing relations: %w", err)
	}
	if outgoing, err = scanLinks(rows); err != nil {
		return nil, nil, err
	}
	rows, err = db.conn.Query(`SELECT `+relationColumns+` FROM relations WHERE target = ? ORDER BY source, position`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("index: incoming relations: %w", err)
	}
	if incoming, err = scanLinks(rows); err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}
