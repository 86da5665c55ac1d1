package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"

	"modernc.org/sqlite"
)

// unicodeLowerFunc is registered on every SQLite connection and lowercases with
// the same Unicode folding as query.Predicate.Match.
const unicodeLowerFunc = "st_lower"

func init() {
	err := sqlite.RegisterDeterministicScalarFunction(unicodeLowerFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case nil:
				return nil, nil
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
	if err != nil {
		panic(fmt.Sprintf("register %s: %v", unicodeLowerFunc, err))
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS animals (
	id              TEXT PRIMARY KEY,
	job_id          TEXT NOT NULL UNIQUE,
	species         TEXT NOT NULL,
	subspecies      TEXT,
	status          TEXT NOT NULL CHECK (status IN ('IN', 'OUT')),
	destination     TEXT NOT NULL,
	incharge_person TEXT,
	remark          TEXT,
	is_treated      INTEGER NOT NULL DEFAULT 0,
	in_at           INTEGER NOT NULL,
	in_by           TEXT NOT NULL,
	out_at          INTEGER,
	out_by          TEXT,
	mark_out_type   TEXT,
	mark_out_reason TEXT,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_animals_status_in_at ON animals (status, in_at);
CREATE INDEX IF NOT EXISTS idx_animals_out_at ON animals (out_at);
CREATE TABLE IF NOT EXISTS api_keys (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	key_hash     TEXT NOT NULL,
	key_prefix   TEXT NOT NULL,
	scopes       TEXT NOT NULL DEFAULT '[]',
	last_used_at INTEGER,
	deleted_at   INTEGER,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix);
`

// SQLiteStore implements Store on a single SQLite file. Timestamps are stored as
// unix nanoseconds in UTC.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "sheltertrack.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Animals ---

func (s *SQLiteStore) CreateAnimal(ctx context.Context, a *models.Animal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO animals (id, job_id, species, subspecies, status, destination, incharge_person,
		   remark, is_treated, in_at, in_by, out_at, out_by, mark_out_type, mark_out_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.JobID, a.Species, nullString(a.Subspecies), string(a.Status), string(a.Destination),
		nullString(a.InchargePerson), nullString(a.Remark), a.IsTreated, unixNano(a.InAt), a.InBy,
		nullUnixNano(a.OutAt), nullString(a.OutBy), nullString(string(a.MarkOutType)), nullString(a.MarkOutReason),
		unixNano(a.CreatedAt), unixNano(a.UpdatedAt))
	if err != nil {
		if isSQLiteUniqueError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create animal: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAnimalByJobID(ctx context.Context, jobID string) (*models.Animal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+animalSelectColumns+` FROM animals WHERE job_id = ?`, jobID)
	a, err := scanSQLiteAnimal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get animal: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) UpdateAnimal(ctx context.Context, a *models.Animal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE animals SET job_id = ?, species = ?, subspecies = ?, status = ?, destination = ?,
		   incharge_person = ?, remark = ?, is_treated = ?, out_at = ?, out_by = ?,
		   mark_out_type = ?, mark_out_reason = ?, updated_at = ?
		 WHERE id = ?`,
		a.JobID, a.Species, nullString(a.Subspecies), string(a.Status), string(a.Destination),
		nullString(a.InchargePerson), nullString(a.Remark), a.IsTreated, nullUnixNano(a.OutAt), nullString(a.OutBy),
		nullString(string(a.MarkOutType)), nullString(a.MarkOutReason), unixNano(a.UpdatedAt), a.ID.String())
	if err != nil {
		if isSQLiteUniqueError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update animal: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteAnimal(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM animals WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete animal: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) FindAnimals(ctx context.Context, q query.Query) ([]*models.Animal, error) {
	w := &whereBuilder{d: sqliteDialect}
	where, err := w.render(q.Where)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	order, err := orderBy(q)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+animalSelectColumns+` FROM animals WHERE `+where+order, w.args...)
	if err != nil {
		return nil, fmt.Errorf("find animals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	animals := []*models.Animal{}
	for rows.Next() {
		a, err := scanSQLiteAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

func (s *SQLiteStore) CountAnimals(ctx context.Context, where query.Predicate) (int, error) {
	w := &whereBuilder{d: sqliteDialect}
	clause, err := w.render(where)
	if err != nil {
		return 0, fmt.Errorf("build filter: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM animals WHERE `+clause, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count animals: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAnimal(row rowScanner) (*models.Animal, error) {
	var (
		a                                   models.Animal
		id, status, destination             string
		subspecies, incharge, remark, outBy sql.NullString
		markOutType, markOutReason          sql.NullString
		inAt, createdAt, updatedAt          int64
		outAt                               sql.NullInt64
	)
	if err := row.Scan(&id, &a.JobID, &a.Species, &subspecies, &status, &destination, &incharge,
		&remark, &a.IsTreated, &inAt, &a.InBy, &outAt, &outBy, &markOutType, &markOutReason,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	a.ID = parsed
	a.Status = models.Status(status)
	a.Destination = models.Destination(destination)
	a.Subspecies = subspecies.String
	a.InchargePerson = incharge.String
	a.Remark = remark.String
	a.InAt = fromUnixNano(inAt)
	if outAt.Valid {
		t := fromUnixNano(outAt.Int64)
		a.OutAt = &t
	}
	a.OutBy = outBy.String
	a.MarkOutType = models.MarkOutType(markOutType.String)
	a.MarkOutReason = markOutReason.String
	a.CreatedAt = fromUnixNano(createdAt)
	a.UpdatedAt = fromUnixNano(updatedAt)
	return &a, nil
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *SQLiteStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return s.queryKeys(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = ? AND deleted_at IS NULL`, prefix)
}

func (s *SQLiteStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	now := unixNano(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ?, updated_at = ? WHERE id = ?`, now, now, id.String())
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID.String(), key.Name, key.KeyHash, key.KeyPrefix, string(scopes),
		unixNano(key.CreatedAt), unixNano(key.UpdatedAt))
	if err != nil {
		if isSQLiteUniqueError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	return s.queryKeys(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
}

func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	now := unixNano(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id.String())
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) queryKeys(ctx context.Context, q string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*models.APIKey
	for rows.Next() {
		var (
			k                    models.APIKey
			id, scopes           string
			lastUsed, deleted    sql.NullInt64
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &k.Name, &k.KeyHash, &k.KeyPrefix, &scopes,
			&lastUsed, &deleted, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		if k.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse api key id: %w", err)
		}
		if err := json.Unmarshal([]byte(scopes), &k.Scopes); err != nil {
			return nil, fmt.Errorf("decode scopes: %w", err)
		}
		if lastUsed.Valid {
			t := fromUnixNano(lastUsed.Int64)
			k.LastUsedAt = &t
		}
		if deleted.Valid {
			t := fromUnixNano(deleted.Int64)
			k.DeletedAt = &t
		}
		k.CreatedAt = fromUnixNano(createdAt)
		k.UpdatedAt = fromUnixNano(updatedAt)
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isSQLiteUniqueError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullUnixNano(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixNano(*t)
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
