package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) LookupIdempotency(ctx context.Context, actorID, endpoint, key string) (string, json.RawMessage, bool, error) {
	var storedHash string
	var stored json.RawMessage
	err := s.DB.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE actor_id = $1 AND key = $2 AND endpoint = $3
  `, actorID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	return storedHash, stored, true, nil
}

func (s *Store) SaveIdempotency(ctx context.Context, actorID, endpoint, key, requestHash string, response json.RawMessage) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO idempotency_keys (actor_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (actor_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, actorID, key, endpoint, requestHash, []byte(response))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
