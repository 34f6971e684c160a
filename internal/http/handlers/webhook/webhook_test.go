package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (f *fakeDispatcher) Submit(_ context.Context, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newRouter(d Dispatcher) http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook/{secret}", New(newNoopLogger(), d, "s3cret", 64).ServeHTTP)
	return r
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		submitErr  error
		wantSubmit int
	}{
		{
			name:       "valid secret hands update off",
			path:       "/webhook/s3cret",
			body:       `{"update_id":1}`,
			wantSubmit: 1,
		},
		{
			name: "wrong secret is acknowledged without processing",
			path: "/webhook/wrong",
			body: `{"update_id":1}`,
		},
		{
			name: "prefix of secret is rejected",
			path: "/webhook/s3cre",
			body: `{"update_id":1}`,
		},
		{
			name: "oversized body is dropped",
			path: "/webhook/s3cret",
			body: `{"update_id":1,"pad":"` + strings.Repeat("x", 100) + `"}`,
		},
		{
			name:       "dispatcher error still acknowledged",
			path:       "/webhook/s3cret",
			body:       `{"update_id":2}`,
			submitErr:  errors.New("shutting down"),
			wantSubmit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{err: tt.submitErr}
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			newRouter(d).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
			assert.Equal(t, tt.wantSubmit, d.count())
		})
	}
}

func TestWebhookHandler_PassesBodyUnchanged(t *testing.T) {
	d := &fakeDispatcher{}
	body := `{"update_id":7,"message":{"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(body))
	rec := httptest.NewRecorder()

	newRouter(d).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.Equal(t, 1, d.count()) {
		assert.Equal(t, body, string(d.bodies[0]))
	}
}
