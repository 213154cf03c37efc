package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wrkportal/sheetengine/internal/core"
)

// SQLite DSN parameters for production hardening.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// SQLite stores tables in a single SQLite file. Writes go through a
// one-connection pool with immediate transactions, which also serializes
// settings updates; reads use a separate pool.
type SQLite struct {
	write *sql.DB
	read  *sql.DB
}

var _ core.Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string, readMaxOpen int) (*SQLite, error) {
	write, err := openSQLite(path, "write", 0)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(write, "sqlite3", "migrations/sqlite"); err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	read, err := openSQLite(path, "read", readMaxOpen)
	if err != nil {
		_ = write.Close()
		return nil, err
	}
	return &SQLite{write: write, read: read}, nil
}

func openSQLite(path, mode string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return db, nil
}

func buildDSN(path, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	if mode == "write" {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}

func (s *SQLite) GetSource(ctx context.Context, id string) (core.TableSource, error) {
	src := core.TableSource{ID: id}
	var rec sourceRecord
	var created, updated string
	err := s.read.QueryRowContext(ctx,
		`SELECT name, columns, rows, created_at, updated_at FROM sources WHERE id = ?`, id,
	).Scan(&src.Name, &rec.columns, &rec.rows, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TableSource{}, core.ErrNotFound("table not found: %s", id)
	}
	if err != nil {
		return core.TableSource{}, fmt.Errorf("get source %s: %w", id, err)
	}
	if err := decodeSource(rec, &src); err != nil {
		return core.TableSource{}, err
	}
	src.CreatedAt = parseTime(created)
	src.UpdatedAt = parseTime(updated)
	return src, nil
}

func (s *SQLite) PutSource(ctx context.Context, src core.TableSource) error {
	rec, err := encodeSource(src)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx, `
		INSERT INTO sources (id, name, columns, rows, row_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			columns = excluded.columns,
			rows = excluded.rows,
			row_count = excluded.row_count,
			updated_at = excluded.updated_at`,
		src.ID, src.Name, string(rec.columns), string(rec.rows), len(src.Rows),
		formatTime(src.CreatedAt), formatTime(src.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put source %s: %w", src.ID, err)
	}
	return nil
}

func (s *SQLite) ListSources(ctx context.Context) ([]core.SourceInfo, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, name, columns, row_count, created_at, updated_at FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []core.SourceInfo{}
	for rows.Next() {
		var info core.SourceInfo
		var columns []byte
		var created, updated string
		if err := rows.Scan(&info.ID, &info.Name, &columns, &info.RowCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		var src core.TableSource
		if err := decodeSource(sourceRecord{columns: columns, rows: []byte("[]")}, &src); err != nil {
			return nil, err
		}
		info.ColumnCount = len(src.Columns)
		info.CreatedAt = parseTime(created)
		info.UpdatedAt = parseTime(updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteSource(ctx context.Context, id string) error {
	if _, err := s.write.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) PutMerge(ctx context.Context, spec core.MergeSpec) error {
	data, err := encodeMerge(spec)
	if err != nil {
		return err
	}

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO merges (derived_id, spec, created_at) VALUES (?, ?, ?)
		ON CONFLICT (derived_id) DO UPDATE SET spec = excluded.spec, created_at = excluded.created_at`,
		spec.DerivedID, string(data), formatTime(spec.CreatedAt),
	); err != nil {
		return fmt.Errorf("put merge %s: %w", spec.DerivedID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM merge_sources WHERE derived_id = ?`, spec.DerivedID); err != nil {
		return fmt.Errorf("clear merge edges %s: %w", spec.DerivedID, err)
	}
	for i, src := range spec.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO merge_sources (derived_id, source_id, position) VALUES (?, ?, ?)`,
			spec.DerivedID, src.SourceID, i,
		); err != nil {
			return fmt.Errorf("put merge edge %s -> %s: %w", src.SourceID, spec.DerivedID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetMerge(ctx context.Context, derivedID string) (core.MergeSpec, error) {
	var data []byte
	err := s.read.QueryRowContext(ctx, `SELECT spec FROM merges WHERE derived_id = ?`, derivedID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MergeSpec{}, core.ErrNotFound("merge not found: %s", derivedID)
	}
	if err != nil {
		return core.MergeSpec{}, fmt.Errorf("get merge %s: %w", derivedID, err)
	}
	return decodeMerge(data)
}

func (s *SQLite) ListMerges(ctx context.Context) ([]core.MergeSpec, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT spec FROM merges ORDER BY derived_id`)
	if err != nil {
		return nil, fmt.Errorf("list merges: %w", err)
	}
	defer rows.Close()

	out := []core.MergeSpec{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		spec, err := decodeMerge(data)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

// Dependents returns the ids of merged tables built directly from id.
func (s *SQLite) Dependents(ctx context.Context, id string) ([]string, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT derived_id FROM merge_sources WHERE source_id = ? ORDER BY derived_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list dependents of %s: %w", id, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteMerge(ctx context.Context, derivedID string) error {
	if _, err := s.write.ExecContext(ctx, `DELETE FROM merges WHERE derived_id = ?`, derivedID); err != nil {
		return fmt.Errorf("delete merge %s: %w", derivedID, err)
	}
	return nil
}

func (s *SQLite) LoadSettings(ctx context.Context, id string) (*core.FileSettings, error) {
	return loadSettingsSQL(ctx, s.read, id)
}

func (s *SQLite) SaveSettings(ctx context.Context, id string, fs core.FileSettings) error {
	return saveSettingsSQL(ctx, s.write, id, fs)
}

// UpdateSettings runs read, modify and write inside one immediate
// transaction on the single write connection.
func (s *SQLite) UpdateSettings(ctx context.Context, id string, fn func(*core.FileSettings) error) (core.FileSettings, error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return core.FileSettings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	current, err := loadSettingsSQL(ctx, tx, id)
	if err != nil {
		return core.FileSettings{}, err
	}
	next, err := core.ApplySettingsUpdate(ctx, current, fn)
	if err != nil {
		return core.FileSettings{}, err
	}
	if err := saveSettingsSQL(ctx, tx, id, next); err != nil {
		return core.FileSettings{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.FileSettings{}, fmt.Errorf("commit settings %s: %w", id, err)
	}
	return next, nil
}

func (s *SQLite) DeleteSettings(ctx context.Context, id string) error {
	if _, err := s.write.ExecContext(ctx, `DELETE FROM settings WHERE table_id = ?`, id); err != nil {
		return fmt.Errorf("delete settings %s: %w", id, err)
	}
	return nil
}

// Close closes both pools.
func (s *SQLite) Close() error {
	return errors.Join(s.read.Close(), s.write.Close())
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadSettingsSQL(ctx context.Context, q sqlQuerier, id string) (*core.FileSettings, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM settings WHERE table_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings %s: %w", id, err)
	}
	fs, err := core.DecodeSettings(data)
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

func saveSettingsSQL(ctx context.Context, q sqlQuerier, id string, fs core.FileSettings) error {
	data, err := core.EncodeSettings(fs)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", id, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO settings (table_id, revision, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET
			revision = excluded.revision,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		id, fs.Revision, string(data), formatTime(fs.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", id, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
