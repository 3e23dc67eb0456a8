package persist

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

type recordedExec struct {
	query string
	args  []driver.NamedValue
}

type recordedQuery struct {
	query string
	args  []driver.NamedValue
}

type fakeSQLRecorder struct {
	mu sync.Mutex

	execs   []recordedExec
	queries []recordedQuery

	// Queue of query responses returned by QueryContext, in order.
	queryResponses []fakeRowsResult
}

type fakeRowsResult struct {
	columns []string
	rows    [][]driver.Value
}

func (r *fakeSQLRecorder) recordExec(query string, args []driver.NamedValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, recordedExec{query: normalizeQuery(query), args: append([]driver.NamedValue(nil), args...)})
}

func (r *fakeSQLRecorder) recordQuery(query string, args []driver.NamedValue) fakeRowsResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, recordedQuery{query: normalizeQuery(query), args: append([]driver.NamedValue(nil), args...)})
	if len(r.queryResponses) == 0 {
		return fakeRowsResult{columns: []string{"data"}, rows: nil}
	}
	resp := r.queryResponses[0]
	r.queryResponses = r.queryResponses[1:]
	return resp
}

type fakeSQLDriver struct{}

var (
	fakeSQLRegisterOnce sync.Once
	fakeSQLMu           sync.Mutex
	fakeSQLRecorders    = map[string]*fakeSQLRecorder{}
)

func (d fakeSQLDriver) Open(name string) (driver.Conn, error) {
	fakeSQLMu.Lock()
	rec := fakeSQLRecorders[name]
	fakeSQLMu.Unlock()
	if rec == nil {
		return nil, fmt.Errorf("unknown fake db name: %s", name)
	}
	return &fakeSQLConn{rec: rec}, nil
}

type fakeSQLConn struct {
	rec *fakeSQLRecorder
}

func (c *fakeSQLConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeSQLStmt{rec: c.rec, query: query}, nil
}
func (c *fakeSQLConn) Close() error              { return nil }
func (c *fakeSQLConn) Begin() (driver.Tx, error) { return fakeSQLTx{}, nil }

func (c *fakeSQLConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.rec.recordExec(query, args)
	return driver.RowsAffected(1), nil
}

func (c *fakeSQLConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	resp := c.rec.recordQuery(query, args)
	return &fakeSQLRows{columns: resp.columns, rows: resp.rows}, nil
}

type fakeSQLTx struct{}

func (fakeSQLTx) Commit() error   { return nil }
func (fakeSQLTx) Rollback() error { return nil }

type fakeSQLStmt struct {
	rec   *fakeSQLRecorder
	query string
}

func (s *fakeSQLStmt) Close() error  { return nil }
func (s *fakeSQLStmt) NumInput() int { return -1 }
func (s *fakeSQLStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.rec.recordExec(s.query, namedFromValues(args))
	return driver.RowsAffected(1), nil
}
func (s *fakeSQLStmt) Query(args []driver.Value) (driver.Rows, error) {
	resp := s.rec.recordQuery(s.query, namedFromValues(args))
	return &fakeSQLRows{columns: resp.columns, rows: resp.rows}, nil
}

func namedFromValues(values []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, 0, len(values))
	for i, v := range values {
		out = append(out, driver.NamedValue{Ordinal: i + 1, Value: v})
	}
	return out
}

type fakeSQLRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *fakeSQLRows) Columns() []string { return r.columns }
func (r *fakeSQLRows) Close() error      { return nil }
func (r *fakeSQLRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func openFakeDB(t *testing.T) (*sql.DB, *fakeSQLRecorder) {
	t.Helper()

	// Register driver once per test binary.
	fakeSQLRegisterOnce.Do(func() {
		sql.Register("tether_fake_sql", fakeSQLDriver{})
	})

	rec := &fakeSQLRecorder{}
	name := t.Name()

	fakeSQLMu.Lock()
	fakeSQLRecorders[name] = rec
	fakeSQLMu.Unlock()

	t.Cleanup(func() {
		fakeSQLMu.Lock()
		delete(fakeSQLRecorders, name)
		fakeSQLMu.Unlock()
	})

	db, err := sql.Open("tether_fake_sql", name)
	if err != nil {
		t.Fatalf("sql.Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db, rec
}

func TestSQLBackend_Placeholders(t *testing.T) {
	db, _ := openFakeDB(t)

	pg := NewSQLBackend(db, WithSQLDialect(DialectPostgreSQL))
	if got := pg.placeholder(3); got != "$3" {
		t.Fatalf("placeholder() got %q want %q", got, "$3")
	}

	my := NewSQLBackend(db, WithSQLDialect(DialectMySQL))
	if got := my.placeholder(3); got != "?" {
		t.Fatalf("placeholder() got %q want %q", got, "?")
	}
}

func TestSQLBackend_PostgresQueries(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db, WithSQLDialect(DialectPostgreSQL))

	ctx := context.Background()
	if err := backend.Write(ctx, "theme", []byte("dark")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rec.mu.Lock()
	if len(rec.execs) != 1 {
		rec.mu.Unlock()
		t.Fatalf("execs got %d want 1", len(rec.execs))
	}
	writeQuery := rec.execs[0].query
	rec.mu.Unlock()
	if !strings.Contains(writeQuery, "INSERT INTO tether_state") || !strings.Contains(writeQuery, "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("unexpected Write query: %q", writeQuery)
	}

	rec.mu.Lock()
	rec.queryResponses = append(rec.queryResponses, fakeRowsResult{
		columns: []string{"data"},
		rows:    [][]driver.Value{{[]byte("dark")}},
	})
	rec.mu.Unlock()

	data, err := backend.Read(ctx, "theme")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(data) != "dark" {
		t.Fatalf("Read() got %q", data)
	}

	if err := backend.Delete(ctx, "theme"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.queries) != 1 {
		t.Fatalf("queries got %d want 1", len(rec.queries))
	}
	if !strings.Contains(rec.queries[0].query, "WHERE id = $1") {
		t.Fatalf("unexpected Read query: %q", rec.queries[0].query)
	}
	if got := rec.execs[len(rec.execs)-1].query; !strings.Contains(got, "DELETE FROM tether_state WHERE id = $1") {
		t.Fatalf("unexpected Delete query: %q", got)
	}
}

func TestSQLBackend_SQLiteUpsert(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db, WithSQLDialect(DialectSQLite), WithSQLTable("app_state"))

	if err := backend.Write(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.execs) != 1 {
		t.Fatalf("execs got %d want 1", len(rec.execs))
	}
	if !strings.Contains(rec.execs[0].query, "INSERT OR REPLACE INTO app_state") {
		t.Fatalf("unexpected Write query: %q", rec.execs[0].query)
	}
}

func TestSQLBackend_MySQLUpsert(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db, WithSQLDialect(DialectMySQL))

	if err := backend.Write(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !strings.Contains(rec.execs[0].query, "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("unexpected Write query: %q", rec.execs[0].query)
	}
}

func TestSQLBackend_Read_NoRowsIsNotFound(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db, WithSQLDialect(DialectSQLite))

	rec.mu.Lock()
	rec.queryResponses = append(rec.queryResponses, fakeRowsResult{
		columns: []string{"data"},
		rows:    nil,
	})
	rec.mu.Unlock()

	_, err := backend.Read(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() error got %v want ErrNotFound", err)
	}
}

func TestSQLBackend_Keys(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db)

	rec.mu.Lock()
	rec.queryResponses = append(rec.queryResponses, fakeRowsResult{
		columns: []string{"id"},
		rows:    [][]driver.Value{{"alpha"}, {"beta"}},
	})
	rec.mu.Unlock()

	keys, err := backend.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Fatalf("Keys() got %v", keys)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !strings.Contains(rec.queries[0].query, "SELECT id FROM tether_state ORDER BY id") {
		t.Fatalf("unexpected Keys query: %q", rec.queries[0].query)
	}
}

func TestSQLBackend_CreateTable(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db, WithSQLDialect(DialectSQLite))

	if err := backend.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable() error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !strings.Contains(rec.execs[0].query, "CREATE TABLE IF NOT EXISTS tether_state") {
		t.Fatalf("unexpected CreateTable query: %q", rec.execs[0].query)
	}
}

func TestSQLBackend_Close_MakesOperationsFail(t *testing.T) {
	db, rec := openFakeDB(t)
	backend := NewSQLBackend(db)
	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if err := backend.Write(context.Background(), "k", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write() after Close got %v want ErrClosed", err)
	}
	if _, err := backend.Read(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read() after Close got %v want ErrClosed", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.execs)+len(rec.queries) != 0 {
		t.Fatal("closed backend still reached the database")
	}
}
