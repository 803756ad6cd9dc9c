package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/logging"
	"github.com/stretchr/testify/assert"
)

func TestRequestLogger_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogged bool
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromContext(r.Context(), zerolog.Nop())
		l.Info().Msg("inside handler")
		ctxLogged = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/notifications", nil))

	assert.True(t, ctxLogged)
	reqID := rec.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, reqID)
	assert.Contains(t, buf.String(), `"request_id":"`+reqID+`"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), "inside handler")
}

func TestRequestLogger_KeepsIncomingRequestID(t *testing.T) {
	handler := RequestLogger(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	handler := Recoverer(zerolog.New(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic: boom")
}

func TestPrometheusMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMiddleware)
	r.Patch("/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PATCH", "/notifications/{id}/read", "204"))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("PATCH", "/notifications/"+id+"/read", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PATCH", "/notifications/{id}/read", "204"))
	assert.Equal(t, before+2, after)
}
