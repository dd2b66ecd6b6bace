// Package http implements the HTTP transport for voxgate.
//
// It exposes the text-to-speech conversion endpoint, the queue-status poll
// endpoint, and the swagger UI. All admission decisions are delegated to
// the admission controller; this layer only parses requests and maps
// results and errors onto the wire contract.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/voxgate/internal/admission"
	"github.com/nadzzz/voxgate/internal/auth"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/voxgate/docs" // swagger spec registration
)

// Transport serves the voxgate HTTP API.
type Transport struct {
	port       int
	controller *admission.Controller
	verifier   auth.Verifier
	server     *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int, controller *admission.Controller, verifier auth.Verifier) *Transport {
	return &Transport{
		port:       port,
		controller: controller,
		verifier:   verifier,
	}
}

// Listen starts the HTTP server. It blocks until the context is cancelled
// or the server fails.
func (t *Transport) Listen(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tts", t.handleConvert)
	mux.HandleFunc("GET /tts/queue-status", t.handleQueueStatus)

	// Swagger UI, backed by the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// convertRequest is the POST /tts body.
type convertRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	UserID string `json:"userId,omitempty"`
}

// errorResponse carries a human message and a stable machine code.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// queuedResponse is returned when the request was queued instead of served.
type queuedResponse struct {
	Queued      bool   `json:"queued"`
	Position    int    `json:"position"`
	QueueLength int    `json:"queueLength"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// statusResponse is the GET /tts/queue-status body.
type statusResponse struct {
	Position            int    `json:"position"`
	QueueLength         int    `json:"queueLength"`
	GlobalLimitExceeded bool   `json:"globalLimitExceeded"`
	Message             string `json:"message"`
}

// handleConvert processes a POST /tts request.
//
// @Summary     Convert text to speech
// @Description Synthesizes the given text with the requested voice. While the global
// @Description budget lasts the audio is returned directly; once it is exhausted the
// @Description request is queued and the response reports the caller's position.
// @Tags        tts
// @Accept      json
// @Produce     audio/mpeg
// @Produce     json
// @Param       request  body      convertRequest  true  "Conversion request"
// @Success     200  {file}    binary  "Synthesized audio"
// @Failure     400  {object}  errorResponse  "Invalid request"
// @Failure     403  {object}  errorResponse  "Email not verified"
// @Failure     429  {object}  queuedResponse "Budget exhausted; request queued"
// @Failure     500  {object}  errorResponse  "Synthesis or store failure"
// @Router      /tts [post]
func (t *Transport) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid json: " + err.Error(),
			Code:  "invalid_request",
		})
		return
	}

	callerKey := clientIP(r)
	logger := slog.With("request_id", uuid.NewString(), "caller_key", callerKey)

	facts := t.verifier.FactsFor(r.Context(), req.UserID)

	result, err := t.controller.Admit(r.Context(), admission.Request{
		CallerKey: callerKey,
		Text:      req.Text,
		Voice:     req.Voice,
		Facts:     facts,
	})
	if err != nil {
		t.writeAdmitError(w, r, logger, callerKey, err)
		return
	}

	switch result.Outcome {
	case admission.OutcomeImmediate:
		logger.Info("request served", "audio_bytes", len(result.Audio))
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
		_, _ = w.Write(result.Audio)

	case admission.OutcomeQueued, admission.OutcomeAlreadyQueued:
		logger.Info("request queued", "position", result.Position, "queue_length", result.QueueLength)
		writeJSON(w, http.StatusTooManyRequests, queuedResponse{
			Queued:      true,
			Position:    result.Position,
			QueueLength: result.QueueLength,
			Code:        "rate_limit_exceeded",
			Message: fmt.Sprintf("Global rate limit exceeded. Your request is queued (position: %d of %d).",
				result.Position, result.QueueLength),
		})
	}
}

// writeAdmitError maps an admission error onto the wire contract.
func (t *Transport) writeAdmitError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, callerKey string, err error) {
	if errors.Is(err, admission.ErrQueueTimeout) {
		// The entry stays queued; report its position for the poller.
		st := t.controller.QueueStatus(r.Context(), callerKey)
		logger.Info("hold timed out, request remains queued", "position", st.Position)
		writeJSON(w, http.StatusTooManyRequests, queuedResponse{
			Queued:      true,
			Position:    st.Position,
			QueueLength: st.QueueLength,
			Code:        "rate_limit_exceeded",
			Message:     "Your request is still queued; poll /tts/queue-status for progress.",
		})
		return
	}

	status := admission.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("admission failed", "error", err)
	} else {
		logger.Info("request rejected", "code", admission.CodeOf(err))
	}
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Code:  admission.CodeOf(err),
	})
}

// handleQueueStatus processes a GET /tts/queue-status request.
//
// @Summary     Poll queue status
// @Description Reports the caller's queue position, the total queue length, and
// @Description whether the global rate limit is currently exceeded.
// @Tags        tts
// @Produce     json
// @Param       callerKey  query  string  false  "Caller key (defaults to the client IP)"
// @Success     200  {object}  statusResponse
// @Router      /tts/queue-status [get]
func (t *Transport) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	callerKey := r.URL.Query().Get("callerKey")
	if callerKey == "" {
		callerKey = clientIP(r)
	}

	st := t.controller.QueueStatus(r.Context(), callerKey)

	var msg string
	switch {
	case st.Position > 0:
		msg = fmt.Sprintf("Your request is queued (position: %d of %d)", st.Position, st.QueueLength)
	case st.GlobalLimitExceeded:
		msg = "Global rate limit exceeded. You can submit a request to be queued."
	default:
		msg = "No requests in queue for your caller key"
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Position:            st.Position,
		QueueLength:         st.QueueLength,
		GlobalLimitExceeded: st.GlobalLimitExceeded,
		Message:             msg,
	})
}

// clientIP extracts the caller's IP, preferring the first X-Forwarded-For
// entry set by the fronting proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
