package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/manifest-sync/database"
)

const (
	getQuery = `SELECT repo_key, manifest_version, last_seen_at, last_registered_at
FROM manifest_versions WHERE repo_key = $1`

	upsertSeenQuery = `INSERT INTO manifest_versions (repo_key, manifest_version, last_seen_at)
VALUES ($1, $2, $3)
ON CONFLICT (repo_key) DO UPDATE
SET manifest_version = EXCLUDED.manifest_version,
    last_seen_at = EXCLUDED.last_seen_at`

	markRegisteredQuery = `UPDATE manifest_versions SET last_registered_at = $2 WHERE repo_key = $1`

	listQuery = `SELECT repo_key, manifest_version, last_seen_at, last_registered_at
FROM manifest_versions ORDER BY repo_key`
)

type postgresStore struct {
	pool       *pgxpool.Pool
	connString string
	now        Clock
}

var _ Store = (*postgresStore)(nil)

// NewPostgresStore creates a Store backed by PostgreSQL. connString is used
// by Initialize to run the schema migrations.
func NewPostgresStore(pool *pgxpool.Pool, connString string, opts ...Option) Store {
	o := newOptions(opts)
	return &postgresStore{pool: pool, connString: connString, now: o.now}
}

func (s *postgresStore) Get(ctx context.Context, repoKey string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, getQuery, repoKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version record %s: %w", repoKey, err)
	}
	return rec, nil
}

func (s *postgresStore) UpsertSeen(ctx context.Context, repoKey, version string) error {
	if _, err := s.pool.Exec(ctx, upsertSeenQuery, repoKey, version, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert version record %s: %w", repoKey, err)
	}
	return nil
}

func (s *postgresStore) MarkRegistered(ctx context.Context, repoKey string) error {
	tag, err := s.pool.Exec(ctx, markRegisteredQuery, repoKey, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark %s registered: %w", repoKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to mark %s registered: %w", repoKey, ErrRecordNotFound)
	}
	return nil
}

func (s *postgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}
	return records, nil
}

func (s *postgresStore) Initialize(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := database.MigrateUp(s.connString); err != nil {
		return err
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.RepoKey, &rec.ManifestVersion, &rec.LastSeenAt, &rec.LastRegisteredAt); err != nil {
		return nil, err
	}
	rec.LastSeenAt = rec.LastSeenAt.UTC()
	if rec.LastRegisteredAt != nil {
		t := rec.LastRegisteredAt.UTC()
		rec.LastRegisteredAt = &t
	}
	return &rec, nil
}
