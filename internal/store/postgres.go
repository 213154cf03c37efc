package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wrkportal/sheetengine/internal/core"
)

// DBTX is the subset of pgx used by queries.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Postgres stores tables in PostgreSQL. Settings updates take a row-level
// advisory lock keyed by table id for the duration of the transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Postgres)(nil)

// NewPostgres applies pending migrations and returns a store over pool.
// The caller owns the pool; Close does not close it.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := runMigrations(db, "postgres", "migrations/postgres"); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) GetSource(ctx context.Context, id string) (core.TableSource, error) {
	src := core.TableSource{ID: id}
	var rec sourceRecord
	err := p.pool.QueryRow(ctx,
		`SELECT name, columns, rows, created_at, updated_at FROM sources WHERE id = $1`, id,
	).Scan(&src.Name, &rec.columns, &rec.rows, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.TableSource{}, core.ErrNotFound("table not found: %s", id)
	}
	if err != nil {
		return core.TableSource{}, fmt.Errorf("get source %s: %w", id, err)
	}
	if err := decodeSource(rec, &src); err != nil {
		return core.TableSource{}, err
	}
	src.CreatedAt = src.CreatedAt.UTC()
	src.UpdatedAt = src.UpdatedAt.UTC()
	return src, nil
}

func (p *Postgres) PutSource(ctx context.Context, src core.TableSource) error {
	rec, err := encodeSource(src)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sources (id, name, columns, rows, row_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			columns = EXCLUDED.columns,
			rows = EXCLUDED.rows,
			row_count = EXCLUDED.row_count,
			updated_at = EXCLUDED.updated_at`,
		src.ID, src.Name, string(rec.columns), string(rec.rows), len(src.Rows), src.CreatedAt, src.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put source %s: %w", src.ID, err)
	}
	return nil
}

func (p *Postgres) ListSources(ctx context.Context) ([]core.SourceInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, jsonb_array_length(columns), row_count, created_at, updated_at
		FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []core.SourceInfo{}
	for rows.Next() {
		var info core.SourceInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.ColumnCount, &info.RowCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		info.CreatedAt = info.CreatedAt.UTC()
		info.UpdatedAt = info.UpdatedAt.UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSource(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) PutMerge(ctx context.Context, spec core.MergeSpec) error {
	data, err := encodeMerge(spec)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, `
		INSERT INTO merges (derived_id, spec, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (derived_id) DO UPDATE SET spec = EXCLUDED.spec, created_at = EXCLUDED.created_at`,
		spec.DerivedID, string(data), spec.CreatedAt,
	); err != nil {
		return fmt.Errorf("put merge %s: %w", spec.DerivedID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM merge_sources WHERE derived_id = $1`, spec.DerivedID); err != nil {
		return fmt.Errorf("clear merge edges %s: %w", spec.DerivedID, err)
	}

	batch := &pgx.Batch{}
	for i, src := range spec.Sources {
		batch.Queue(`INSERT INTO merge_sources (derived_id, source_id, position) VALUES ($1, $2, $3)`,
			spec.DerivedID, src.SourceID, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("put merge edges %s: %w", spec.DerivedID, err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetMerge(ctx context.Context, derivedID string) (core.MergeSpec, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT spec FROM merges WHERE derived_id = $1`, derivedID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MergeSpec{}, core.ErrNotFound("merge not found: %s", derivedID)
	}
	if err != nil {
		return core.MergeSpec{}, fmt.Errorf("get merge %s: %w", derivedID, err)
	}
	return decodeMerge(data)
}

func (p *Postgres) ListMerges(ctx context.Context) ([]core.MergeSpec, error) {
	rows, err := p.pool.Query(ctx, `SELECT spec FROM merges ORDER BY derived_id`)
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
func (p *Postgres) Dependents(ctx context.Context, id string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT derived_id FROM merge_sources WHERE source_id = $1 ORDER BY derived_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list dependents of %s: %w", id, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) DeleteMerge(ctx context.Context, derivedID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM merges WHERE derived_id = $1`, derivedID); err != nil {
		return fmt.Errorf("delete merge %s: %w", derivedID, err)
	}
	return nil
}

func (p *Postgres) LoadSettings(ctx context.Context, id string) (*core.FileSettings, error) {
	return loadSettingsPG(ctx, p.pool, id)
}

func (p *Postgres) SaveSettings(ctx context.Context, id string, fs core.FileSettings) error {
	return saveSettingsPG(ctx, p.pool, id, fs)
}

// UpdateSettings serializes updates of one id with a transaction-scoped
// advisory lock, which also covers the first insert of a record.
func (p *Postgres) UpdateSettings(ctx context.Context, id string, fn func(*core.FileSettings) error) (core.FileSettings, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return core.FileSettings{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "settings:"+id); err != nil {
		return core.FileSettings{}, fmt.Errorf("lock settings %s: %w", id, err)
	}
	current, err := loadSettingsPG(ctx, tx, id)
	if err != nil {
		return core.FileSettings{}, err
	}
	next, err := core.ApplySettingsUpdate(ctx, current, fn)
	if err != nil {
		return core.FileSettings{}, err
	}
	if err := saveSettingsPG(ctx, tx, id, next); err != nil {
		return core.FileSettings{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.FileSettings{}, fmt.Errorf("commit settings %s: %w", id, err)
	}
	return next, nil
}

func (p *Postgres) DeleteSettings(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM settings WHERE table_id = $1`, id); err != nil {
		return fmt.Errorf("delete settings %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() error { return nil }

func loadSettingsPG(ctx context.Context, q DBTX, id string) (*core.FileSettings, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT data FROM settings WHERE table_id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

func saveSettingsPG(ctx context.Context, q DBTX, id string, fs core.FileSettings) error {
	data, err := core.EncodeSettings(fs)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", id, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO settings (table_id, revision, data, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_id) DO UPDATE SET
			revision = EXCLUDED.revision,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		id, fs.Revision, string(data), fs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", id, err)
	}
	return nil
}
