package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

func (s *Store) LookupIdempotency(ctx context.Context, actorID, endpoint, key string) (string, json.RawMessage, bool, error) {
	var storedHash, stored string
	err := s.db.QueryRowContext(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE actor_id = ? AND key = ? AND endpoint = ?
  `, actorID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	return storedHash, json.RawMessage(stored), true, nil
}

func (s *Store) SaveIdempotency(ctx context.Context, actorID, endpoint, key, requestHash string, response json.RawMessage) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
    INSERT INTO idempotency_keys (actor_id, key, endpoint, request_hash, response_json)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT (actor_id, key, endpoint)
    DO UPDATE SET response_json = excluded.response_json
    WHERE idempotency_keys.request_hash = excluded.request_hash
  `, actorID, key, endpoint, requestHash, string(response))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
