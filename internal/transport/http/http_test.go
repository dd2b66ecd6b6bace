package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voxgate/internal/admission"
	"github.com/nadzzz/voxgate/internal/auth"
	"github.com/nadzzz/voxgate/internal/budget"
	"github.com/nadzzz/voxgate/internal/queue"
	"github.com/nadzzz/voxgate/internal/synth/mock"
)

func newTestTransport(t *testing.T, limit int, opts admission.Options, verifier auth.Verifier) *Transport {
	t.Helper()

	controller := admission.New(
		budget.NewMemoryLedger(limit, budget.PerMinute),
		queue.NewMemoryStore(),
		mock.New(),
		queue.NewWaiters(),
		nil,
		opts,
	)
	if verifier == nil {
		verifier = &auth.StaticVerifier{}
	}
	return New(0, controller, verifier)
}

func postTTS(tr *Transport, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:54321"
	w := httptest.NewRecorder()
	tr.handleConvert(w, req)
	return w
}

func TestHandleConvertReturnsAudio(t *testing.T) {
	tr := newTestTransport(t, 5, admission.Options{}, nil)

	w := postTTS(tr, `{"text":"hello","voice":"nova"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "mock-audio:nova:hello", w.Body.String())
}

func TestHandleConvertInvalidJSON(t *testing.T) {
	tr := newTestTransport(t, 5, admission.Options{}, nil)

	w := postTTS(tr, `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Code)
}

func TestHandleConvertEmptyText(t *testing.T) {
	tr := newTestTransport(t, 5, admission.Options{}, nil)

	w := postTTS(tr, `{"text":"","voice":"nova"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Code)
	assert.Contains(t, resp.Error, "text")
}

func TestHandleConvertUnverifiedEmail(t *testing.T) {
	verifier := &auth.StaticVerifier{Verified: map[string]bool{"u-verified": true}}
	tr := newTestTransport(t, 5, admission.Options{RequireVerified: true}, verifier)

	w := postTTS(tr, `{"text":"hello","voice":"nova","userId":"u-unverified"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "email_not_verified", resp.Code)

	// A verified user sails through.
	w = postTTS(tr, `{"text":"hello","voice":"nova","userId":"u-verified"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleConvertQueued(t *testing.T) {
	tr := newTestTransport(t, 0, admission.Options{}, nil)

	w := postTTS(tr, `{"text":"hello","voice":"nova"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp queuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, 1, resp.Position)
	assert.Equal(t, 1, resp.QueueLength)
	assert.Equal(t, "rate_limit_exceeded", resp.Code)
	assert.Contains(t, resp.Message, "position: 1")
}

func TestHandleQueueStatus(t *testing.T) {
	tr := newTestTransport(t, 0, admission.Options{}, nil)

	// Queue an entry for this caller first.
	w := postTTS(tr, `{"text":"hello","voice":"nova"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/tts/queue-status", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	w = httptest.NewRecorder()
	tr.handleQueueStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Position)
	assert.Equal(t, 1, resp.QueueLength)
	assert.True(t, resp.GlobalLimitExceeded)
	assert.Contains(t, resp.Message, "position: 1 of 1")
}

func TestHandleQueueStatusEmpty(t *testing.T) {
	tr := newTestTransport(t, 5, admission.Options{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/tts/queue-status", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	w := httptest.NewRecorder()
	tr.handleQueueStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Position)
	assert.False(t, resp.GlobalLimitExceeded)
	assert.Contains(t, resp.Message, "No requests in queue")
}

func TestHandleQueueStatusExplicitCallerKey(t *testing.T) {
	tr := newTestTransport(t, 0, admission.Options{}, nil)

	w := postTTS(tr, `{"text":"hello","voice":"nova"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// Poll from a different address using the original caller key.
	req := httptest.NewRequest(http.MethodGet, "/tts/queue-status?callerKey=192.0.2.10", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	rec := httptest.NewRecorder()
	tr.handleQueueStatus(rec, req)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Position)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
