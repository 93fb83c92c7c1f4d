package verification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/messaging"
	"github.com/google/uuid"
)

const (
	// MetadataHeader carries base64 encoded JSON message metadata
	MetadataHeader = "Pact-Message-Metadata"
	// RequestIDHeader identifies one verification request
	RequestIDHeader = "X-Request-Id"

	defaultMaxBodyBytes = 10 << 20
)

// ErrorResponse is the body of every non-success response
type ErrorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	RequestID   string `json:"requestId"`
}

// Handler turns verification requests into produced messages
type Handler struct {
	handlers     *messaging.HandlerRegistry
	states       *messaging.StateRegistry
	logger       *slog.Logger
	metrics      *Metrics
	maxBodyBytes int64
}

// HandlerOption configures the Handler
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records request outcomes and producer durations
func WithMetrics(metrics *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// WithMaxBodyBytes limits the size of a request body
func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		h.maxBodyBytes = limit
	}
}

// NewHandler creates a verification handler. Nil registries are treated as
// empty.
func NewHandler(handlers *messaging.HandlerRegistry, states *messaging.StateRegistry, options ...HandlerOption) *Handler {
	h := &Handler{
		handlers:     handlers,
		states:       states,
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}

	for _, opt := range options {
		opt(h)
	}

	if h.handlers == nil {
		h.handlers = messaging.NewHandlerRegistry(messaging.WithRegistryLogger(h.logger))
	}
	if h.states == nil {
		h.states = messaging.NewStateRegistry(messaging.WithStateLogger(h.logger))
	}

	return h
}

// ServeHTTP implements http.Handler. Every request gets exactly one response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := h.logger.With("requestId", requestID)

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := fmt.Errorf("unexpected panic: %v", rec)
			logger.Error("verification request panicked", "error", err)
			h.metrics.observeRequest("internal_error")
			h.writeError(w, http.StatusInternalServerError, err, "", requestID)
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		err = fmt.Errorf("%w: reading body: %v", contracts.ErrMalformedRequest, err)
		logger.Warn("rejected verification request", "error", err)
		h.metrics.observeRequest(contracts.Kind(err))
		h.writeError(w, status, err, "", requestID)
		return
	}

	msg, err := contracts.ParseMessage(body)
	if err != nil {
		logger.Warn("rejected verification request", "error", err)
		h.metrics.observeRequest(contracts.Kind(err))
		h.writeError(w, http.StatusBadRequest, err, "", requestID)
		return
	}

	logger = logger.With("description", msg.Description)
	logger.Debug("verifying message", "providerStates", msg.StateNames())

	produced, err := h.Produce(r.Context(), msg)
	if err != nil {
		logger.Error("message verification failed", "kind", contracts.Kind(err), "error", err)
		h.metrics.observeRequest(contracts.Kind(err))
		h.writeError(w, http.StatusInternalServerError, err, msg.Description, requestID)
		return
	}

	payload, err := json.Marshal(produced.Contents)
	if err != nil {
		err = &contracts.HandlerError{Description: msg.Description, Err: fmt.Errorf("encoding contents: %w", err)}
		logger.Error("message verification failed", "kind", contracts.Kind(err), "error", err)
		h.metrics.observeRequest(contracts.Kind(err))
		h.writeError(w, http.StatusInternalServerError, err, msg.Description, requestID)
		return
	}

	if len(produced.Metadata) > 0 {
		metadata, err := json.Marshal(produced.Metadata)
		if err != nil {
			err = &contracts.HandlerError{Description: msg.Description, Err: fmt.Errorf("encoding metadata: %w", err)}
			logger.Error("message verification failed", "kind", contracts.Kind(err), "error", err)
			h.metrics.observeRequest(contracts.Kind(err))
			h.writeError(w, http.StatusInternalServerError, err, msg.Description, requestID)
			return
		}
		w.Header().Set(MetadataHeader, base64.StdEncoding.EncodeToString(metadata))
	}

	h.metrics.observeRequest("success")
	logger.Info("message produced")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// Produce establishes the message's provider states and then invokes its
// producer. States run to completion before the producer is called.
func (h *Handler) Produce(ctx context.Context, msg *contracts.Message) (*contracts.ProducedMessage, error) {
	if _, err := h.states.ResolveAll(ctx, msg); err != nil {
		return nil, err
	}

	producer, err := h.handlers.Resolve(ctx, msg.Description)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	value, err := producer.Produce(ctx)
	h.metrics.observeProducer(msg.Description, time.Since(start))
	if err != nil {
		return nil, &contracts.HandlerError{Description: msg.Description, Err: err}
	}

	switch v := value.(type) {
	case *contracts.ProducedMessage:
		if v == nil {
			return &contracts.ProducedMessage{}, nil
		}
		return v, nil
	case contracts.ProducedMessage:
		return &v, nil
	default:
		return &contracts.ProducedMessage{Contents: value}, nil
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error, description, requestID string) {
	body, encodeErr := json.Marshal(ErrorResponse{
		Error:       err.Error(),
		Kind:        contracts.Kind(err),
		Description: description,
		RequestID:   requestID,
	})
	if encodeErr != nil {
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
