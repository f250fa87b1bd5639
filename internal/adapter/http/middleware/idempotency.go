package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/infrastructure/logger"
	"github.com/iho/golend/internal/usecase"
)

const (
	// IdempotencyKeyHeader lets a client retry a POST or PUT safely.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a replayed response.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotentBody     = 1 << 20
)

// idempotencyRecord is stored under a key. Status stays zero while the
// first request is running.
type idempotencyRecord struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// IdempotencyMiddleware replays the response of a completed 2xx POST or PUT
// that carried the same Idempotency-Key from the same caller. Reusing a key
// for a different method, path or body is rejected with 422.
type IdempotencyMiddleware struct {
	store  usecase.IdempotencyStore
	ttl    time.Duration
	logger zerolog.Logger
}

func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration, log zerolog.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl, logger: log}
}

func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key = scopedKey(r, key)
		fingerprint := requestFingerprint(r, body)
		claim, _ := json.Marshal(idempotencyRecord{Fingerprint: fingerprint})

		exists, cached, err := m.store.CheckAndSet(r.Context(), key, claim, m.ttl)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "idempotency check failed")
			return
		}
		if exists {
			m.replay(w, cached, fingerprint)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.finish(r, key, fingerprint, rec)
	})
}

func (m *IdempotencyMiddleware) replay(w http.ResponseWriter, cached []byte, fingerprint string) {
	var stored idempotencyRecord
	if err := json.Unmarshal(cached, &stored); err != nil {
		writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}
	if stored.Fingerprint != fingerprint {
		writeError(w, http.StatusUnprocessableEntity, "idempotency key was used for a different request")
		return
	}
	if stored.Status == 0 {
		writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyReplayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// finish stores a 2xx response for replay and releases the key otherwise,
// so a failed request can be retried with the same key.
func (m *IdempotencyMiddleware) finish(r *http.Request, key, fingerprint string, rec *responseRecorder) {
	log := logger.WithContext(r.Context(), m.logger).With().Str("idempotency_key", key).Logger()
	release := func() {
		if err := m.store.Release(r.Context(), key); err != nil {
			log.Warn().Err(err).Msg("failed to release idempotency key")
		}
	}

	if rec.statusCode < 200 || rec.statusCode >= 300 {
		release()
		return
	}
	raw, err := json.Marshal(idempotencyRecord{Fingerprint: fingerprint, Status: rec.statusCode, Body: rec.body.Bytes()})
	if err != nil {
		log.Warn().Err(err).Msg("response is not replayable")
		release()
		return
	}
	if err := m.store.Update(r.Context(), key, raw, m.ttl); err != nil {
		log.Warn().Err(err).Msg("failed to store idempotent response")
	}
}

// scopedKey keeps one caller's keys from colliding with another's.
func scopedKey(r *http.Request, key string) string {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return caller.Address.Hex() + ":" + key
	}
	return "anonymous:" + key
}

func requestFingerprint(r *http.Request, body []byte) string {
	return crypto.Keccak256Hash([]byte(r.Method+" "+r.URL.Path+"\n"), body).Hex()
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
