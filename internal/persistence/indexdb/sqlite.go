// Package indexdb keeps a queryable SQLite copy of the saved shopkeepers.
// The YAML save file stays the source of truth; the index is rebuilt from it
// after every write.
package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type req struct {
	save saveRow
	rows []Row
	// done is closed once everything queued before it was written.
	done chan struct{}
}

type saveRow struct {
	Seq       int
	Path      string
	WrittenAt string
}

type Stats struct {
	DropTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Only the latest snapshot matters, so a short queue is enough.
		ch: make(chan req, 8),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS shopkeepers (
			id INTEGER PRIMARY KEY,
			unique_id TEXT NOT NULL,
			name TEXT NOT NULL,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			type TEXT NOT NULL,
			object_type TEXT NOT NULL,
			owner TEXT NOT NULL,
			owner_uuid TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shopkeepers_chunk ON shopkeepers(world, cx, cz);`,
		`CREATE INDEX IF NOT EXISTS idx_shopkeepers_owner ON shopkeepers(owner_uuid);`,
		`CREATE TABLE IF NOT EXISTS saves (
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			shopkeepers INTEGER NOT NULL,
			written_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Replace queues a full refresh of the index from the rows of save seq. It
// never blocks; refreshes are dropped while the writer falls behind.
func (s *SQLiteIndex) Replace(seq int, path string, rows []Row) {
	if s == nil || s.closed.Load() {
		return
	}
	r := req{
		save: saveRow{Seq: seq, Path: path, WrittenAt: time.Now().UTC().Format(time.RFC3339Nano)},
		rows: rows,
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// Sync waits until every refresh queued before the call was written.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{DropTotal: s.dropped.Load()}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		if r.done != nil {
			close(r.done)
			continue
		}
		// The next save rebuilds the whole table, a failed refresh is not retried.
		_ = s.replace(r)
	}
}

func (s *SQLiteIndex) replace(r req) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM shopkeepers`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO shopkeepers(id,unique_id,name,world,x,y,z,cx,cz,type,object_type,owner,owner_uuid) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range r.rows {
		if _, err := stmt.Exec(row.ID, row.UniqueID, row.Name, row.World, row.X, row.Y, row.Z, row.CX, row.CZ,
			row.Type, row.ObjectType, row.Owner, row.OwnerUUID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO saves(seq,path,shopkeepers,written_at) VALUES(?,?,?,?)`,
		r.save.Seq, r.save.Path, len(r.rows), r.save.WrittenAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	World     string
	Type      string
	OwnerUUID string
}

const selectRow = `SELECT id,unique_id,name,world,x,y,z,cx,cz,type,object_type,owner,owner_uuid FROM shopkeepers`

func (s *SQLiteIndex) List(ctx context.Context, f Filter) ([]Row, error) {
	var (
		where []string
		args  []any
	)
	if f.World != "" {
		where = append(where, "world=?")
		args = append(args, f.World)
	}
	if f.Type != "" {
		where = append(where, "type=?")
		args = append(args, f.Type)
	}
	if f.OwnerUUID != "" {
		where = append(where, "owner_uuid=?")
		args = append(args, f.OwnerUUID)
	}
	q := selectRow
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the row of shopkeeper id. ok is false if it is not indexed.
func (s *SQLiteIndex) Get(ctx context.Context, id int) (row Row, ok bool, err error) {
	row, err = scanRow(s.db.QueryRowContext(ctx, selectRow+" WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// CountByType returns the number of indexed shopkeepers per shop type.
func (s *SQLiteIndex) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM shopkeepers GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// LastSave returns the sequence number and path of the save the index was built from.
func (s *SQLiteIndex) LastSave(ctx context.Context) (seq int, path string, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT seq, path FROM saves ORDER BY rowid DESC LIMIT 1`).Scan(&seq, &path)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	return seq, path, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (Row, error) {
	var r Row
	err := sc.Scan(&r.ID, &r.UniqueID, &r.Name, &r.World, &r.X, &r.Y, &r.Z, &r.CX, &r.CZ,
		&r.Type, &r.ObjectType, &r.Owner, &r.OwnerUUID)
	return r, err
}
