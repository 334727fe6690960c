package migrate

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
		create table a (id text default 'x;y');
		insert into a values ('it''s');
		select 1`)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "'x;y'") {
		t.Fatalf("quoted semicolon split: %q", stmts[0])
	}

	stmts = splitStatements("-- header; not a statement\ncreate table c (id text); -- trailing;\n")
	if len(stmts) != 1 || stmts[0] != "create table c (id text)" {
		t.Fatalf("comments not skipped: %q", stmts)
	}
}

func TestScanSortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.up.sql":   {Data: []byte("select 2;")},
		"001_a.up.sql":   {Data: []byte("select 1;")},
		"001_a.down.sql": {Data: []byte("select 0;")},
		"README.md":      {Data: []byte("docs")},
	}
	files, err := scan(fsys, ".up.sql")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(files) != 2 || files[0].Name != "001_a.up.sql" || files[1].Name != "002_b.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}

	none, err := scan(nil, ".sql")
	if err != nil || none != nil {
		t.Fatalf("nil fs should yield nothing, got %v %v", none, err)
	}
}

func TestEmbeddedSchemaHasPairs(t *testing.T) {
	schema := Schema()
	ups, err := scan(schema, ".up.sql")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ups) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(ups))
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up.Path, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(schema, down); err != nil {
			t.Fatalf("missing down migration for %s", up.Name)
		}
	}
}

func TestUpAppliesPendingInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"001_a.up.sql": {Data: []byte("create table a (id text);")},
		"002_b.up.sql": {Data: []byte("create table b (id text); create index b_id on b (id);")},
	}

	expectJournals(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("002_b.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index b_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := NewManager(db, fsys, nil).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpSkipsScriptClaimedByAnotherRunner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{"001_a.up.sql": {Data: []byte("create table a (id text);")}}

	expectJournals(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("001_a.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := NewManager(db, fsys, nil).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRevertsLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"001_a.down.sql": {Data: []byte("drop table a;")},
		"002_b.up.sql":   {Data: []byte("create table b (id text);")},
		"002_b.down.sql": {Data: []byte("drop table b;")},
	}
	now := time.Now()

	expectJournals(mock)
	mock.ExpectQuery("select name, applied_at from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).
			AddRow("001_a.up.sql", now.Add(-time.Minute)).
			AddRow("002_b.up.sql", now))
	mock.ExpectBegin()
	mock.ExpectExec("delete from schema_migrations where name").
		WithArgs("002_b.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("drop table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := NewManager(db, fsys, nil).Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithEmptyJournal(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	expectJournals(mock)
	mock.ExpectQuery("select name, applied_at from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))

	err = NewManager(db, fstest.MapFS{}, nil).Down(context.Background())
	if !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("expected ErrNothingApplied, got %v", err)
	}
}

func TestDownRequiresDownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{"001_a.up.sql": {Data: []byte("create table a (id text);")}}

	expectJournals(mock)
	mock.ExpectQuery("select name, applied_at from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("001_a.up.sql", time.Now()))

	err = NewManager(db, fsys, nil).Down(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing down migration") {
		t.Fatalf("expected missing down migration error, got %v", err)
	}
}

func expectJournals(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}
