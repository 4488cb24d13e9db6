package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()
	rec := serve(h, "/health/ready")
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness(t *testing.T) {
	up := func(context.Context) error { return nil }

	t.Run("ready when every check passes", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", up)
		h.RegisterCheck("redis", up)

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "up", body.Checks["postgres"].Status)
		assert.Len(t, body.Checks, 2)
	})

	t.Run("ready with no checks", func(t *testing.T) {
		code, body := readiness(t, New("test"))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body.Status)
	})

	t.Run("not ready when a check fails", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", up)
		h.RegisterCheck("redis", func(context.Context) error { return errors.New("connection refused") })

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, CheckResult{Status: "down", Error: "connection refused"}, CheckResult{
			Status: body.Checks["redis"].Status,
			Error:  body.Checks["redis"].Error,
		})
		assert.Equal(t, "up", body.Checks["postgres"].Status)
	})

	t.Run("slow checks are cut off", func(t *testing.T) {
		h := New("test", WithCheckTimeout(20*time.Millisecond))
		h.RegisterCheck("kafka", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, context.DeadlineExceeded.Error(), body.Checks["kafka"].Error)
	})

	t.Run("draining fails readiness but not liveness", func(t *testing.T) {
		h := New("test")
		h.RegisterCheck("postgres", up)
		h.Drain()

		code, body := readiness(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "draining", body.Status)
		assert.Equal(t, http.StatusOK, serve(h, "/health/live").Code)
	})
}

func TestStatus(t *testing.T) {
	h := New("test")
	h.RegisterCheck("redis", func(context.Context) error { return errors.New("not called") })
	h.RegisterCheck("postgres", func(context.Context) error { return nil })

	rec := serve(h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Environment)
	assert.Equal(t, []string{"postgres", "redis"}, body.Checks)
}
