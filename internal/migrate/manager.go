package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"
)

// ErrNothingApplied is returned by Down when the journal is empty.
var ErrNothingApplied = errors.New("migrate: no migrations applied")

// Manager applies SQL scripts from two file systems: the schema, made of
// NNN_name.up.sql / NNN_name.down.sql pairs, and optional seed scripts.
// Every script runs in its own transaction together with its journal entry.
type Manager struct {
	db     *sql.DB
	schema source
	seeds  source
}

// source is a set of scripts and the journal table that remembers which of
// them ran.
type source struct {
	files   fs.FS
	journal string
}

// Applied is one journal entry.
type Applied struct {
	Name string
	At   time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable renames the schema journal table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.schema.journal = name
		}
	}
}

// WithSeedsTable renames the seed journal table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seeds.journal = name
		}
	}
}

// NewManager constructs a Manager. A nil seeds FS makes Seed a no-op.
func NewManager(db *sql.DB, schema, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		schema: source{files: schema, journal: defaultMigrationsTable},
		seeds:  source{files: seeds, journal: defaultSeedsTable},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every schema script that is not journaled yet, in name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.schema, ".up.sql", "migration")
}

// Seed applies every seed script that is not journaled yet.
func (m *Manager) Seed(ctx context.Context) error {
	return m.applyPending(ctx, m.seeds, ".sql", "seed")
}

// Down reverts the most recently applied schema script.
func (m *Manager) Down(ctx context.Context) error {
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrNothingApplied
	}
	last := history[len(history)-1].Name

	downs, err := scan(m.schema.files, ".down.sql")
	if err != nil {
		return err
	}
	want := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	i := sort.Search(len(downs), func(i int) bool { return downs[i].Name >= want })
	if i == len(downs) || downs[i].Name != want {
		return fmt.Errorf("missing down migration for %s", last)
	}

	forget := func(ctx context.Context, tx *sql.Tx) (bool, error) {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.schema.journal), last)
		return err == nil, err
	}
	if err := m.run(ctx, m.schema.files, downs[i].Path, forget); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return nil
}

// Status lists the applied schema scripts, oldest first.
func (m *Manager) Status(ctx context.Context) ([]Applied, error) {
	if err := m.prepare(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name, applied_at from %s order by applied_at asc, name asc`, m.schema.journal))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Name, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (m *Manager) applyPending(ctx context.Context, src source, suffix, kind string) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	done, err := m.journaled(ctx, src.journal)
	if err != nil {
		return err
	}
	scripts, err := scan(src.files, suffix)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if done[s.Name] {
			continue
		}
		if err := m.run(ctx, src.files, s.Path, claim(src.journal, s.Name)); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, s.Name, err)
		}
	}
	return nil
}

// claim journals name inside the script's transaction before the script
// runs. A concurrent runner that already claimed it makes the insert a
// no-op, and the script is skipped.
func claim(journal, name string) func(context.Context, *sql.Tx) (bool, error) {
	return func(ctx context.Context, tx *sql.Tx) (bool, error) {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2) on conflict (name) do nothing`, journal),
			name, time.Now().UTC())
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err
	}
}

// run executes the statements of one script after gate succeeds, all in one
// transaction. When gate reports false the transaction is rolled back.
func (m *Manager) run(ctx context.Context, fsys fs.FS, name string, gate func(context.Context, *sql.Tx) (bool, error)) error {
	body, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	proceed, err := gate(ctx, tx)
	if err != nil || !proceed {
		return err
	}
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) prepare(ctx context.Context) error {
	for _, table := range []string{m.schema.journal, m.seeds.journal} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("prepare journal %s: %w", table, err)
		}
	}
	return nil
}

func (m *Manager) journaled(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		seen[name] = true
	}
	return seen, rows.Err()
}

type script struct {
	Name string
	Path string
}

// scan lists the files of fsys ending in suffix, sorted by base name.
func scan(fsys fs.FS, suffix string) ([]script, error) {
	if fsys == nil {
		return nil, nil
	}
	var out []script
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() || !strings.HasSuffix(d.Name(), suffix):
			return nil
		}
		out = append(out, script{Name: path.Base(p), Path: p})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// splitStatements cuts a script at top-level semicolons. Single-quoted
// literals and -- line comments are honoured; dollar quoting is not.
func splitStatements(src string) []string {
	var (
		out     []string
		buf     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
				buf.WriteRune(r)
			}
			continue
		case r == '\'':
			quoted = !quoted
		case !quoted && r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			continue
		case !quoted && r == ';':
			flush()
			continue
		}
		buf.WriteRune(r)
	}
	flush()
	return out
}
