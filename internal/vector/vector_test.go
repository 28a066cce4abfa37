package vector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr  error
	dimension int
	callCount int
	lastInput []string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	m.lastInput = nil
	for _, doc := range req.Input {
		if len(doc.Content) > 0 {
			m.lastInput = append(m.lastInput, doc.Content[0].Text)
		}
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}

	dim := m.dimension
	if dim == 0 {
		dim = Dimension
	}
	resp := &ai.EmbedResponse{}
	for range req.Input {
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: make([]float32, dim)})
	}
	return resp, nil
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
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *int:
			*v = row[i].(int)
		case *float64:
			*v = row[i].(float64)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() {}

// fakeDB records statements and serves canned rows.
type fakeDB struct {
	execSQL   []string
	execArgs  [][]any
	execErr   error
	queryRows *fakeRows
	queryErr  error
	querySQL  string
	queryArgs []any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryRows == nil {
		f.queryRows = &fakeRows{}
	}
	return f.queryRows, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.querySQL = sql
	f.queryArgs = args
	return fakeRow{}
}

type fakeRow struct{}

func (fakeRow) Scan(dest ...any) error {
	if len(dest) == 1 {
		if p, ok := dest[0].(*int); ok {
			*p = 42
		}
	}
	return nil
}

func TestChunkID(t *testing.T) {
	got := ChunkID("d2719f3a-88cf-4f0c-9f3e-0a9f59f1c2ab", 7)
	want := "d2719f3a-88cf-4f0c-9f3e-0a9f59f1c2ab#chunk7"
	if got != want {
		t.Errorf("ChunkID = %q, want %q", got, want)
	}
}

func TestPut_UpsertsWithDerivedID(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &mockEmbedder{}, nil)

	rec := Record{
		DocID:      "doc-1",
		ChunkIndex: 3,
		PageRange:  "1-10",
		Text:       "chunk body",
		Embedding:  make([]float32, Dimension),
	}
	if err := store.Put(context.Background(), rec); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if len(db.execSQL) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (id) DO UPDATE") {
		t.Error("Put should upsert on id")
	}
	if got := db.execArgs[0][0]; got != "doc-1#chunk3" {
		t.Errorf("derived id = %v, want doc-1#chunk3", got)
	}
}

func TestPut_RejectsWrongDimension(t *testing.T) {
	store := New(&fakeDB{}, &mockEmbedder{}, nil)

	rec := Record{DocID: "doc-1", Embedding: make([]float32, 16)}
	if err := store.Put(context.Background(), rec); err == nil {
		t.Fatal("Put() accepted a 16-dimension embedding")
	}
}

func TestEmbed_BatchPreservesOrder(t *testing.T) {
	emb := &mockEmbedder{}
	store := New(&fakeDB{}, emb, nil)

	texts := []string{"first", "second", "third"}
	got, err := store.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Embed() returned %d vectors, want 3", len(got))
	}
	if emb.callCount != 1 {
		t.Errorf("Embed() made %d embedder calls, want 1 batch call", emb.callCount)
	}
	if len(emb.lastInput) != 3 || emb.lastInput[0] != "first" {
		t.Errorf("embedder input = %v", emb.lastInput)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	emb := &mockEmbedder{}
	store := New(&fakeDB{}, emb, nil)

	got, err := store.Embed(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("Embed(nil) = %v, %v; want nil, nil", got, err)
	}
	if emb.callCount != 0 {
		t.Error("Embed(nil) should not call the embedder")
	}
}

func TestEmbed_RejectsWrongDimension(t *testing.T) {
	store := New(&fakeDB{}, &mockEmbedder{dimension: 8}, nil)

	if _, err := store.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("Embed() accepted a wrong-dimension response")
	}
}

func TestQuery_EmbedsOnceAndFiltersByDocument(t *testing.T) {
	db := &fakeDB{queryRows: &fakeRows{data: [][]any{
		{"doc-1#chunk0", "doc-1", 0, "1-10", "first chunk", 0.92},
		{"doc-1#chunk4", "doc-1", 4, "11-20", "later chunk", 0.81},
	}}}
	emb := &mockEmbedder{}
	store := New(db, emb, nil)

	results, err := store.Query(context.Background(), "what is the summary",
		WithTopK(5), WithDocument("doc-1"))
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if emb.callCount != 1 {
		t.Errorf("query embedded %d times, want once", emb.callCount)
	}
	if !strings.Contains(db.querySQL, "WHERE doc_id = $2") {
		t.Error("document filter missing from query")
	}
	if got := db.queryArgs[1]; got != "doc-1" {
		t.Errorf("doc filter arg = %v, want doc-1", got)
	}
	if got := db.queryArgs[2]; got != 5 {
		t.Errorf("top-k arg = %v, want 5", got)
	}

	if len(results) != 2 {
		t.Fatalf("Query() returned %d results, want 2", len(results))
	}
	if results[0].ID != "doc-1#chunk0" || results[0].Score != 0.92 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Text != "later chunk" {
		t.Errorf("second result text = %q", results[1].Text)
	}
}

func TestQuery_NoFilterDefaults(t *testing.T) {
	db := &fakeDB{queryRows: &fakeRows{}}
	store := New(db, &mockEmbedder{}, nil)

	results, err := store.Query(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if strings.Contains(db.querySQL, "WHERE doc_id") {
		t.Error("unfiltered query should not constrain doc_id")
	}
	if got := db.queryArgs[1]; got != defaultTopK {
		t.Errorf("default top-k = %v, want %d", got, defaultTopK)
	}
}

func TestQuery_CreatedAfterFilter(t *testing.T) {
	db := &fakeDB{queryRows: &fakeRows{}}
	store := New(db, &mockEmbedder{}, nil)

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Query(context.Background(), "recent changes",
		WithDocument("doc-1"), WithCreatedAfter(cutoff))
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	if !strings.Contains(db.querySQL, "doc_id = $2 AND created_at > $3") {
		t.Errorf("filters missing or misordered in query:\n%s", db.querySQL)
	}
	if got := db.queryArgs[2]; got != cutoff {
		t.Errorf("created_at arg = %v, want %v", got, cutoff)
	}
	if got := db.queryArgs[3]; got != defaultTopK {
		t.Errorf("top-k arg = %v, want %d", got, defaultTopK)
	}
}

func TestQuery_EmbedFailure(t *testing.T) {
	wantErr := errors.New("embedder down")
	store := New(&fakeDB{}, &mockEmbedder{embedErr: wantErr}, nil)

	if _, err := store.Query(context.Background(), "query"); !errors.Is(err, wantErr) {
		t.Errorf("Query() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestBuildQueryConfig_Clamps(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, defaultTopK},
		{-3, defaultTopK},
		{5, 5},
		{30, 30},
		{100, maxTopK},
	}
	for _, tt := range tests {
		cfg := buildQueryConfig([]QueryOption{WithTopK(tt.in)})
		if cfg.topK != tt.want {
			t.Errorf("WithTopK(%d) -> %d, want %d", tt.in, cfg.topK, tt.want)
		}
	}
}

func TestDeleteByDocument(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &mockEmbedder{}, nil)

	if _, err := store.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument() error: %v", err)
	}
	if !strings.Contains(db.execSQL[0], "DELETE FROM document_chunks") {
		t.Errorf("unexpected statement %q", db.execSQL[0])
	}
	if db.execArgs[0][0] != "doc-1" {
		t.Errorf("delete arg = %v", db.execArgs[0][0])
	}
}

func TestCountByDocument(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &mockEmbedder{}, nil)

	got, err := store.CountByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("CountByDocument() error: %v", err)
	}
	if got != 42 {
		t.Errorf("count = %d, want 42", got)
	}
}
