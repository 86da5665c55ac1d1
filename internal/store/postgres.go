package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
	"github.com/kiranshivaraju/sheltertrack/pkg/query"
)

const animalSelectColumns = `id, job_id, species, subspecies, status, destination, incharge_person,
	remark, is_treated, in_at, in_by, out_at, out_by, mark_out_type, mark_out_reason, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Animals ---

func (s *PostgresStore) CreateAnimal(ctx context.Context, a *models.Animal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO animals (id, job_id, species, subspecies, status, destination, incharge_person,
		   remark, is_treated, in_at, in_by, out_at, out_by, mark_out_type, mark_out_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.JobID, a.Species, nullString(a.Subspecies), string(a.Status), string(a.Destination),
		nullString(a.InchargePerson), nullString(a.Remark), a.IsTreated, a.InAt, a.InBy,
		a.OutAt, nullString(a.OutBy), nullString(string(a.MarkOutType)), nullString(a.MarkOutReason),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create animal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnimalByJobID(ctx context.Context, jobID string) (*models.Animal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+animalSelectColumns+` FROM animals WHERE job_id = $1`, jobID)
	a, err := scanPostgresAnimal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get animal: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAnimal(ctx context.Context, a *models.Animal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE animals SET job_id = $2, species = $3, subspecies = $4, status = $5, destination = $6,
		   incharge_person = $7, remark = $8, is_treated = $9, out_at = $10, out_by = $11,
		   mark_out_type = $12, mark_out_reason = $13, updated_at = $14
		 WHERE id = $1`,
		a.ID, a.JobID, a.Species, nullString(a.Subspecies), string(a.Status), string(a.Destination),
		nullString(a.InchargePerson), nullString(a.Remark), a.IsTreated, a.OutAt, nullString(a.OutBy),
		nullString(string(a.MarkOutType)), nullString(a.MarkOutReason), a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update animal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAnimal(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM animals WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete animal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindAnimals(ctx context.Context, q query.Query) ([]*models.Animal, error) {
	w := &whereBuilder{d: postgresDialect}
	where, err := w.render(q.Where)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	order, err := orderBy(q)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+animalSelectColumns+` FROM animals WHERE `+where+order, w.args...)
	if err != nil {
		return nil, fmt.Errorf("find animals: %w", err)
	}
	defer rows.Close()

	animals := []*models.Animal{}
	for rows.Next() {
		a, err := scanPostgresAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}

func (s *PostgresStore) CountAnimals(ctx context.Context, where query.Predicate) (int, error) {
	w := &whereBuilder{d: postgresDialect}
	clause, err := w.render(where)
	if err != nil {
		return 0, fmt.Errorf("build filter: %w", err)
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM animals WHERE `+clause, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count animals: %w", err)
	}
	return n, nil
}

func scanPostgresAnimal(row pgx.Row) (*models.Animal, error) {
	var (
		a                                   models.Animal
		status, destination                 string
		subspecies, incharge, remark, outBy *string
		markOutType, markOutReason          *string
		outAt                               *time.Time
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.Species, &subspecies, &status, &destination, &incharge,
		&remark, &a.IsTreated, &a.InAt, &a.InBy, &outAt, &outBy, &markOutType, &markOutReason,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.Status(status)
	a.Destination = models.Destination(destination)
	a.Subspecies = deref(subspecies)
	a.InchargePerson = deref(incharge)
	a.Remark = deref(remark)
	a.OutAt = outAt
	a.OutBy = deref(outBy)
	a.MarkOutType = models.MarkOutType(deref(markOutType))
	a.MarkOutReason = deref(markOutReason)
	return &a, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
