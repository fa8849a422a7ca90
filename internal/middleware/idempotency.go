package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/forgo/qola/api/internal/model"
)

// transportHeaders belong to the connection that carried the first response,
// not to the outcome being replayed.
var transportHeaders = []string{"Content-Encoding", "Content-Length", "Vary", "X-Request-ID"}

// IdempotencyStore remembers responses to requests carrying an
// Idempotency-Key so a retried registration replays the first outcome
// instead of running again.
type IdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*idempotencyEntry
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

type idempotencyEntry struct {
	status    int
	headers   http.Header
	body      []byte
	expiresAt time.Time
	done      chan struct{}
}

func (e *idempotencyEntry) completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *idempotencyEntry) replay(w http.ResponseWriter) {
	for k, v := range e.headers {
		w.Header()[k] = append([]string(nil), v...)
	}
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(e.status)
	_, _ = w.Write(e.body)
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	TTL     time.Duration // How long to keep results (default 24h)
	Cleanup time.Duration // Cleanup interval (default 1h)
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(cfg IdempotencyConfig) *IdempotencyStore {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Cleanup <= 0 {
		cfg.Cleanup = time.Hour
	}

	store := &IdempotencyStore{
		entries:  make(map[string]*idempotencyEntry),
		ttl:      cfg.TTL,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go store.cleanupLoop(cfg.Cleanup)
	return store
}

// Stop stops the cleanup goroutine
func (s *IdempotencyStore) Stop() {
	close(s.stopChan)
}

func (s *IdempotencyStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *IdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if e.completed() && e.expiresAt.Before(now) {
			delete(s.entries, key)
		}
	}
}

// claim returns the existing entry for key, or registers a new in-flight
// entry and reports ownership of it.
func (s *IdempotencyStore) claim(key string) (entry *idempotencyEntry, owner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		if !e.completed() || e.expiresAt.After(s.now()) {
			return e, false
		}
	}
	e := &idempotencyEntry{done: make(chan struct{})}
	s.entries[key] = e
	return e, true
}

func (s *IdempotencyStore) complete(e *idempotencyEntry, rec *recordingWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.status = rec.status
	e.headers = rec.header.Clone()
	for _, h := range transportHeaders {
		e.headers.Del(h)
	}
	e.body = rec.body.Bytes()
	e.expiresAt = s.now().Add(s.ttl)
	close(e.done)
}

// fingerprint binds the key to the caller and the exact request, so reusing a
// key with a different body is treated as a new request.
func fingerprint(scope, idempotencyKey, method, path string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{scope, idempotencyKey, method, path} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// recordingWriter captures the response for replay. The handler writes into
// its own header map, so headers added by outer middleware are not recorded.
type recordingWriter struct {
	http.ResponseWriter
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newRecordingWriter(w http.ResponseWriter) *recordingWriter {
	return &recordingWriter{ResponseWriter: w, header: make(http.Header), status: http.StatusOK}
}

func (w *recordingWriter) Header() http.Header {
	return w.header
}

func (w *recordingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	dst := w.ResponseWriter.Header()
	for k, v := range w.header {
		dst[k] = v
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency returns middleware that replays responses for POST requests
// with a repeated Idempotency-Key from the same client address.
func Idempotency(store *IdempotencyStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, model.MaxRequestBodyBytes))
			if err != nil {
				model.NewBadRequestError(model.MsgInvalidRegistration, model.ErrCodeInvalidInput).WriteJSON(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := GetClientAddress(r.Context())
			if scope == "" {
				scope = r.RemoteAddr
			}
			key := fingerprint(scope, idempotencyKey, r.Method, r.URL.Path, body)

			entry, owner := store.claim(key)
			if !owner {
				select {
				case <-entry.done:
					entry.replay(w)
				case <-r.Context().Done():
				}
				return
			}

			rec := newRecordingWriter(w)
			defer store.complete(entry, rec)
			next.ServeHTTP(rec, r)
		})
	}
}
