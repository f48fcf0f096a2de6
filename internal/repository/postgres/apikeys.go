package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

// CreateAPIKey inserts a hashed key record.
func (r *Repository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	const query = `INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.ExpiresAt, key.CreatedAt)
	return mapWriteErr(err)
}

// GetAPIKeyByHash looks up a key by its digest.
func (r *Repository) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	const query = `SELECT id, user_id, name, key_hash, key_prefix, expires_at, last_used_at, revoked_at, created_at
		FROM api_keys WHERE key_hash = $1`
	var k domain.APIKey
	err := r.pool.QueryRow(ctx, query, hash).Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.ExpiresAt, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

// ListAPIKeysByUser returns keys owned by a user, newest first.
func (r *Repository) ListAPIKeysByUser(ctx context.Context, userID string) ([]domain.APIKey, error) {
	const query = `SELECT id, user_id, name, key_hash, key_prefix, expires_at, last_used_at, revoked_at, created_at
		FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		var k domain.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.ExpiresAt, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchAPIKey records the last authenticated use.
func (r *Repository) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, usedAt)
	return err
}

// RevokeAPIKey marks a key unusable.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id, revokedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
