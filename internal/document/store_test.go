package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/doculake/doculake/internal/log"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.vals[i].(string)
		case *int:
			*v = r.vals[i].(int)
		case *int64:
			*v = r.vals[i].(int64)
		case *Status:
			*v = r.vals[i].(Status)
		case *time.Time:
			*v = r.vals[i].(time.Time)
		}
	}
	return nil
}

// fakeRows satisfies the parts of pgx.Rows the store touches.
type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return fakeRow{vals: r.data[r.idx-1]}.Scan(dest...)
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() {}

type fakeDB struct {
	execSQL   []string
	execArgs  [][]any
	execTag   pgconn.CommandTag
	execErr   error
	row       fakeRow
	queryRows *fakeRows
	querySQL  string
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return db.execTag, nil
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.querySQL = sql
	if db.queryRows == nil {
		db.queryRows = &fakeRows{}
	}
	return db.queryRows, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.row
}

func newFakeDB() *fakeDB {
	return &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
}

func TestCreate_ResetsCountersOnConflict(t *testing.T) {
	db := newFakeDB()
	store := NewStatusStore(db, log.NewNop())

	err := store.Create(context.Background(), "report", "report.pdf", 2048, 25)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(db.execSQL) != 1 {
		t.Fatalf("got %d exec calls, want 1", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (id) DO UPDATE") {
		t.Error("create must upsert so re-ingestion resets the record")
	}
	args := db.execArgs[0]
	if args[0] != "report" || args[4] != StatusUploaded {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestUpdateProgress_UnknownDocument(t *testing.T) {
	db := newFakeDB()
	db.execTag = pgconn.NewCommandTag("UPDATE 0")
	store := NewStatusStore(db, log.NewNop())

	err := store.UpdateProgress(context.Background(), "missing", 10, 4)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMarkCompleted_UnknownDocument(t *testing.T) {
	db := newFakeDB()
	db.execTag = pgconn.NewCommandTag("UPDATE 0")
	store := NewStatusStore(db, log.NewNop())

	err := store.MarkCompleted(context.Background(), "missing", 12)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAddPageError_MessageCarriesPage(t *testing.T) {
	db := newFakeDB()
	store := NewStatusStore(db, log.NewNop())

	if err := store.AddPageError(context.Background(), "report", 7, "unreadable content stream"); err != nil {
		t.Fatalf("AddPageError: %v", err)
	}

	args := db.execArgs[0]
	msg, _ := args[1].(string)
	if msg != "page 7: unreadable content stream" {
		t.Errorf("got message %q", msg)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := newFakeDB()
	db.row = fakeRow{err: pgx.ErrNoRows}
	store := NewStatusStore(db, log.NewNop())

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGet_ScansRecord(t *testing.T) {
	now := time.Now().UTC()
	db := newFakeDB()
	db.row = fakeRow{vals: []any{
		"report", "report.pdf", int64(2048), 25, StatusInProgress,
		10, 4, 1, "page 7: unreadable content stream", now, now,
	}}
	store := NewStatusStore(db, log.NewNop())

	doc, err := store.Get(context.Background(), "report")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.ID != "report" || doc.Status != StatusInProgress {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.CurrentPage != 10 || doc.TotalChunks != 4 || doc.ErrorCount != 1 {
		t.Errorf("unexpected counters: %+v", doc)
	}
}

func TestList_NewestFirst(t *testing.T) {
	now := time.Now().UTC()
	db := newFakeDB()
	db.queryRows = &fakeRows{data: [][]any{
		{"newer", "newer.pdf", int64(512), 3, StatusCompleted, 3, 2, 0, "", now, now},
		{"older", "older.pdf", int64(2048), 25, StatusFailed, 10, 4, 2, "page 7: unreadable content stream", now.Add(-time.Hour), now},
	}}
	store := NewStatusStore(db, log.NewNop())

	docs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !strings.Contains(db.querySQL, "ORDER BY created_at DESC") {
		t.Error("listing must return the newest documents first")
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].ID != "newer" || docs[1].Status != StatusFailed {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestList_Empty(t *testing.T) {
	db := newFakeDB()
	store := NewStatusStore(db, log.NewNop())

	docs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents, want none", len(docs))
	}
}

func TestDelete(t *testing.T) {
	db := newFakeDB()
	store := NewStatusStore(db, log.NewNop())

	if err := store.Delete(context.Background(), "report"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "DELETE FROM documents") {
		t.Errorf("unexpected sql: %s", db.execSQL[0])
	}
}
