package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxIdempotentBody bounds the body buffered for hashing and replay.
const maxIdempotentBody = 64 << 10

// IdempotencyRecord is what the store keeps per Idempotency-Key.
type IdempotencyRecord struct {
	RequestHash string
	StatusCode  int
	Body        []byte
	Completed   bool
}

// IdempotencyStore persists Idempotency-Key outcomes.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	// Reserve claims key for requestHash; it returns false if the key is
	// already held.
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (bool, error)
	Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response when a creator resubmits a request
// with the same Idempotency-Key and body. Only 2xx outcomes are kept: a
// rejected request frees its key so the corrected form can be resent.
// Requests without the header pass straight through.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			creatorID, ok := CreatorFromCtx(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if len(key) > 255 {
				http.Error(w, `{"error":"Idempotency-Key too long"}`, http.StatusBadRequest)
				return
			}

			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			sum := sha256.Sum256(bodyBytes)
			hash := hex.EncodeToString(sum[:])
			storeKey := creatorID.String() + ":" + key

			rec, err := store.Get(r.Context(), storeKey)
			if err != nil {
				logger.Error("idempotency lookup", "error", err, "creator_id", creatorID)
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if rec != nil {
				replay(w, rec, hash)
				return
			}

			reserved, err := store.Reserve(r.Context(), storeKey, hash, ttl)
			if err != nil {
				logger.Error("idempotency reserve", "error", err, "creator_id", creatorID)
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if !reserved {
				http.Error(w, `{"error":"a request with this Idempotency-Key is in progress"}`, http.StatusConflict)
				return
			}

			rw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// The request context may be gone by now; the outcome still has to land.
			ctx := context.WithoutCancel(r.Context())
			if rw.status >= 200 && rw.status < 300 {
				err = store.Complete(ctx, storeKey, rw.status, rw.body.Bytes(), ttl)
			} else {
				err = store.Release(ctx, storeKey)
			}
			if err != nil {
				logger.Error("idempotency finalize", "error", err, "creator_id", creatorID, "status", rw.status)
			}
		})
	}
}

func replay(w http.ResponseWriter, rec *IdempotencyRecord, hash string) {
	switch {
	case rec.RequestHash != hash:
		http.Error(w, `{"error":"Idempotency-Key was already used with a different request"}`, http.StatusUnprocessableEntity)
	case !rec.Completed:
		http.Error(w, `{"error":"a request with this Idempotency-Key is in progress"}`, http.StatusConflict)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
	}
}

type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
