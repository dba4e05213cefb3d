package index

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "decisionrecords-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id int, title string, lines ...string) string {
	s := "# " + strconv.Itoa(id) + ". " + title + "\n\n## Status\n\n"
	for _, l := range lines {
		s += l + "\n\n"
	}
	return s + "## Context\n\nContext.\n"
}

func supersedes(target int, name string) models.Link {
	return models.Link{Kind: models.RelationSupersedes, Direction: models.DirectionTo, Target: target, TargetPath: name, Line: "Supersedes " + name}
}

func supersededBy(target int, name string) models.Link {
	return models.Link{Kind: models.RelationSupersedes, Direction: models.DirectionFrom, Target: target, TargetPath: name, Line: "Superseded by " + name}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&count); err != nil {
		t.Fatalf("records table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM relations`).Scan(&count); err != nil {
		t.Fatalf("relations table missing: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(MemoryDSN)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, Checksum: "1", UpdatedAt: time.Now()}, "body", nil); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	// A second query must see the same in-memory database.
	if cs, _ := db.GetChecksum("0001-a.md"); cs != "1" {
		t.Errorf("checksum = %q", cs)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := RecordRow{Path: "0001-use-go.md", ID: 1, Title: "Use Go", Status: "Approved", HasBlock: true, Checksum: "abc123", UpdatedAt: time.Now()}
	if err := db.UpsertRecord(row, "We use Go.", nil); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	cs, err := db.GetChecksum("0001-use-go.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("0009-missing.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestUpsertReplacesRelations(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, Checksum: "1", UpdatedAt: now}, "v1", []models.Link{supersedes(1, "0001-a.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, Title: "B", Checksum: "2", UpdatedAt: now}, "v2", nil)

	out, _, err := db.Relations(2)
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("stale relations kept: %+v", out)
	}
	r, err := db.GetRecord(2)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if r.Title != "B" || r.Checksum != "2" {
		t.Errorf("record not updated: %+v", r)
	}
}

func TestRelations_OutgoingAndIncoming(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, Checksum: "1", UpdatedAt: now}, "", []models.Link{supersededBy(2, "0002-b.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, Checksum: "2", UpdatedAt: now}, "", []models.Link{supersedes(1, "0001-a.md")})

	out, in, err := db.Relations(2)
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(out) != 1 || out[0].Source != 2 || out[0].Target != 1 || out[0].Direction != models.DirectionTo {
		t.Errorf("outgoing = %+v", out)
	}
	if len(in) != 1 || in[0].Source != 1 || in[0].Direction != models.DirectionFrom {
		t.Errorf("incoming = %+v", in)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, Checksum: "x", UpdatedAt: time.Now()}, "body", []models.Link{supersededBy(2, "0002-b.md")})
	if err := db.DeleteRecord("0001-a.md"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	cs, _ := db.GetChecksum("0001-a.md")
	if cs != "" {
		t.Error("record should be deleted")
	}
	var n int
	_ = db.conn.QueryRow(`SELECT count(*) FROM relations`).Scan(&n)
	if n != 0 {
		t.Errorf("relations left: %d", n)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetRecord(7)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRecords_FilterByStatus(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, Status: "Proposed", UpdatedAt: now}, "", nil)
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, Status: "Approved", UpdatedAt: now}, "", nil)
	_ = db.UpsertRecord(RecordRow{Path: "0003-c.md", ID: 3, Status: "Approved", UpdatedAt: now}, "", nil)

	all, err := db.ListRecords("")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Errorf("all = %+v", all)
	}
	approved, _ := db.ListRecords("Approved")
	if len(approved) != 2 {
		t.Errorf("approved = %+v", approved)
	}
}

func TestGraph_DeduplicatesReciprocalLines(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	link := func(target int, name string) models.Link {
		return models.Link{Kind: models.RelationLinks, Direction: models.DirectionFrom, Target: target, TargetPath: name}
	}
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, UpdatedAt: now}, "", []models.Link{supersededBy(2, "0002-b.md"), link(3, "0003-c.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, UpdatedAt: now}, "", []models.Link{supersedes(1, "0001-a.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0003-c.md", ID: 3, UpdatedAt: now}, "", []models.Link{link(1, "0001-a.md")})

	nodes, edges, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 3 {
		t.Errorf("nodes = %+v", nodes)
	}
	want := []GraphEdge{
		{From: 1, To: 3, Kind: models.RelationLinks},
		{From: 2, To: 1, Kind: models.RelationSupersedes},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %+v", edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, edges[i], want[i])
		}
	}
}

func TestCheck_Consistent(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, HasBlock: true, UpdatedAt: now}, "", []models.Link{supersededBy(2, "0002-b.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, HasBlock: true, UpdatedAt: now}, "", []models.Link{supersedes(1, "0001-a.md")})

	issues, err := db.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %+v", issues)
	}
}

func TestCheck_ReportsProblems(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertRecord(RecordRow{Path: "0001-a.md", ID: 1, HasBlock: true, UpdatedAt: now}, "", []models.Link{supersededBy(2, "0002-b.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-b.md", ID: 2, HasBlock: true, UpdatedAt: now}, "", []models.Link{supersedes(9, "0009-gone.md")})
	_ = db.UpsertRecord(RecordRow{Path: "0002-dup.md", ID: 2, HasBlock: false, UpdatedAt: now}, "", nil)

	issues, err := db.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := make(map[IssueKind]int)
	for _, i := range issues {
		got[i.Kind]++
		if i.String() == "" {
			t.Errorf("empty description for %+v", i)
		}
	}
	want := map[IssueKind]int{
		IssueMissingReciprocal: 1,
		IssueDanglingTarget:    1,
		IssueDuplicateID:       2,
		IssueNoStatusBlock:     1,
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("%s: got %d, want %d (all: %+v)", k, got[k], n, issues)
		}
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertRecord(RecordRow{Path: "0001-use-sqlite.md", ID: 1, Title: "Use SQLite", Checksum: "s", UpdatedAt: time.Now()}, "An embedded database keeps deployment simple.", nil)

	results, err := db.Search("embedded", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 1 || results[0].Path != "0001-use-sqlite.md" {
		t.Errorf("results = %+v", results)
	}
}

func syncEnv(t *testing.T) (*DB, *storage.FS) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return testDB(t), store
}

func TestSync_IndexesRecords(t *testing.T) {
	db, store := syncEnv(t)
	_ = store.Write("0001-a.md", []byte(record(1, "A", "Superseded by [2. B](0002-b.md)")))
	_ = store.Write("0002-b.md", []byte(record(2, "B", "Approved", "Supersedes [1. A](0001-a.md)")))
	_ = store.Write("notes.md", []byte("# Not a record\n"))

	if err := Sync(db, store, parser.NewPhrases(nil), quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	recs, _ := db.ListRecords("")
	if len(recs) != 2 {
		t.Fatalf("records = %+v", recs)
	}
	b, err := db.GetRecord(2)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if b.Title != "B" || b.Status != "Approved" || !b.HasBlock {
		t.Errorf("record = %+v", b)
	}
	a, _ := db.GetRecord(1)
	if a.Status != "" {
		t.Errorf("relation line taken as status word: %q", a.Status)
	}
	issues, _ := db.Check()
	if len(issues) != 0 {
		t.Errorf("issues = %+v", issues)
	}
}

func TestSync_RemovesStaleAndSkipsUnchanged(t *testing.T) {
	db, store := syncEnv(t)
	_ = store.Write("0001-a.md", []byte(record(1, "A", "Approved")))
	_ = store.Write("0002-b.md", []byte(record(2, "B", "Approved")))
	phrases := parser.NewPhrases(nil)
	if err := Sync(db, store, phrases, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// Mark the unchanged record so a re-index would be visible.
	_, _ = db.conn.Exec(`UPDATE records SET title = 'kept' WHERE path = '0001-a.md'`)
	_ = os.Remove(filepath.Join(store.Root(), "0002-b.md"))

	if err := Sync(db, store, phrases, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum("0002-b.md"); cs != "" {
		t.Error("removed record still indexed")
	}
	a, _ := db.GetRecord(1)
	if a.Title != "kept" {
		t.Errorf("unchanged record was re-indexed: %+v", a)
	}
}
