package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID tags the request with the caller's X-Request-ID, or a fresh
// UUID, and echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// accessLog records each request at debug level. A panicking handler is
// answered with a 500 and logged at error level.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestID(r.Context()),
			}
			if p := recover(); p != nil {
				s.logger.Error("http handler panic", append(attrs, "panic", p)...)
				fail(rec, http.StatusInternalServerError, "internal server error")
				return
			}
			s.logger.Debug("http request", append(attrs,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)...)
		}()

		next.ServeHTTP(rec, r)
	})
}

// recorder remembers the status code written through it.
type recorder struct {
	http.ResponseWriter
	status int
}

func (rec *recorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Hijack hands the connection to the WebSocket upgrader.
func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: connection cannot be hijacked")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
