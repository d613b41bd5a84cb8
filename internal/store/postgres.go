package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekoi/dataverse-archiver/pkg/models"
)

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

// --- Datasets and versions ---

func (s *PostgresStore) UpsertDatasetVersion(ctx context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error) {
	var datasetID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO datasets (id, global_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (global_id) DO UPDATE SET global_id = EXCLUDED.global_id
		 RETURNING id`,
		uuid.New(), globalID,
	).Scan(&datasetID)
	if err != nil {
		return nil, fmt.Errorf("upsert dataset: %w", err)
	}

	var v models.DatasetVersion
	err = s.pool.QueryRow(ctx,
		`INSERT INTO dataset_versions (id, dataset_id, friendly_number, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (dataset_id, friendly_number) DO UPDATE SET updated_at = NOW()
		 RETURNING id, dataset_id, friendly_number, archive_state, archive_note, archive_time, created_at, updated_at`,
		uuid.New(), datasetID, friendlyNumber,
	).Scan(&v.ID, &v.DatasetID, &v.FriendlyNumber, &v.ArchiveState, &v.ArchiveNote, &v.ArchiveTime,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert dataset version: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) GetDatasetVersion(ctx context.Context, globalID, friendlyNumber string) (*models.DatasetVersion, error) {
	var v models.DatasetVersion
	err := s.pool.QueryRow(ctx,
		`SELECT dv.id, dv.dataset_id, dv.friendly_number, dv.archive_state, dv.archive_note, dv.archive_time, dv.created_at, dv.updated_at
		 FROM dataset_versions dv
		 JOIN datasets d ON d.id = dv.dataset_id
		 WHERE d.global_id = $1 AND dv.friendly_number = $2`,
		globalID, friendlyNumber,
	).Scan(&v.ID, &v.DatasetID, &v.FriendlyNumber, &v.ArchiveState, &v.ArchiveNote, &v.ArchiveTime,
		&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset version: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) RecordArchiveState(ctx context.Context, globalID, friendlyNumber, state string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dataset_versions dv
		 SET archive_state = $3, archive_time = NOW(), updated_at = NOW()
		 FROM datasets d
		 WHERE dv.dataset_id = d.id AND d.global_id = $1 AND dv.friendly_number = $2`,
		globalID, friendlyNumber, state)
	if err != nil {
		return fmt.Errorf("record archive state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordArchived(ctx context.Context, globalID, friendlyNumber, state, note, pid string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dataset_versions dv
		 SET archive_state = $3, archive_note = $4, archive_time = NOW(), updated_at = NOW()
		 FROM datasets d
		 WHERE dv.dataset_id = d.id AND d.global_id = $1 AND dv.friendly_number = $2
		   AND (dv.archive_note IS NULL OR position($5 in dv.archive_note) = 0)`,
		globalID, friendlyNumber, state, note, pid)
	if err != nil {
		return false, fmt.Errorf("record archived: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Zero rows is either an unknown version or a replayed success.
	if _, err := s.GetDatasetVersion(ctx, globalID, friendlyNumber); err != nil {
		return false, err
	}
	return false, nil
}

// --- API Keys ---

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

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
