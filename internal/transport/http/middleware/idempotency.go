package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"leaveflow/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore keeps the first successful response of a keyed request.
// SaveIdempotency reports false when the key is already bound to a
// different request hash.
type IdempotencyStore interface {
	LookupIdempotency(ctx context.Context, actorID, endpoint, key string) (string, json.RawMessage, bool, error)
	SaveIdempotency(ctx context.Context, actorID, endpoint, key, requestHash string, response json.RawMessage) (bool, error)
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotency replays the stored response of a repeated request carrying
// the same Idempotency-Key and body. Reusing a key with a different body is
// a conflict. Requests without the header pass through.
func Idempotency(store IdempotencyStore, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			user, ok := GetUser(r.Context())
			if key == "" || !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > 255 {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", requestID)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "request body could not be read", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			hash := RequestHash(raw)

			storedHash, stored, found, err := store.LookupIdempotency(r.Context(), user.UserID, endpoint, key)
			if err != nil {
				slog.Warn("idempotency lookup failed", "endpoint", endpoint, "err", err, "requestId", requestID)
				api.Fail(w, http.StatusInternalServerError, "idempotency_error", "idempotency check failed", requestID)
				return
			}
			if found {
				if storedHash != hash {
					api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", requestID)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(stored)
				return
			}

			buffered := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(buffered, r)
			if buffered.status < 200 || buffered.status >= 300 {
				return
			}
			saved, err := store.SaveIdempotency(r.Context(), user.UserID, endpoint, key, hash, json.RawMessage(buffered.body.Bytes()))
			if err != nil {
				slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err, "requestId", requestID)
			} else if !saved {
				slog.Warn("idempotency key raced with a different payload", "endpoint", endpoint, "requestId", requestID)
			}
		})
	}
}
