// Package handlers provides HTTP handlers for the ingestion API.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/labwire/go-lis/internal/api/middleware"
	"github.com/labwire/go-lis/internal/domain/specimen"
	"github.com/labwire/go-lis/internal/integration"
	"github.com/labwire/go-lis/internal/observability/metrics"
	"github.com/labwire/go-lis/internal/protocol"
	"github.com/labwire/go-lis/pkg/idempotency"
)

// maxMessageBytes bounds an analyzer payload; legitimate result messages are
// a few kilobytes.
const maxMessageBytes = 1 << 20

// ResultsHandler handles analyzer result ingestion
type ResultsHandler struct {
	orchestrator *integration.Orchestrator
	registry     specimen.MachineRegistry
	inbox        *idempotency.Inbox
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewResultsHandler creates a new handler. inbox may be nil, in which case
// device retries are reprocessed with last-write-wins semantics.
func NewResultsHandler(orchestrator *integration.Orchestrator, registry specimen.MachineRegistry, inbox *idempotency.Inbox, m *metrics.Metrics, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{
		orchestrator: orchestrator,
		registry:     registry,
		inbox:        inbox,
		metrics:      m,
		logger:       logger,
	}
}

// Routes returns the handler routes
func (h *ResultsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Ingest)
	return r
}

// IngestResponse is the transport response for a posted result message.
type IngestResponse struct {
	SampleID     string   `json:"sample_id"`
	SavingStatus string   `json:"saving_status"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Ingest handles POST /results. The machine was already resolved by the auth
// middleware; the raw payload is persisted for audit before decoding, then
// handed to the orchestrator. Domain-level mismatches (unknown sample,
// unmapped parameter) answer 200 with a descriptive status, never 5xx.
func (h *ResultsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	tracer := otel.Tracer("results-handler")
	ctx, span := tracer.Start(ctx, "ingest_result_message")
	defer span.End()

	machine := middleware.GetMachine(ctx)
	if machine == nil {
		h.jsonError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		h.jsonError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		h.jsonError(w, "empty message body", http.StatusBadRequest)
		return
	}

	proto := protocol.Protocol(r.URL.Query().Get("protocol"))
	if proto == "" {
		proto = machine.Protocol
	}
	if !proto.Valid() {
		h.jsonError(w, "unsupported protocol", http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("machine", machine.Name),
		attribute.String("protocol", string(proto)),
	)
	if h.metrics != nil {
		h.metrics.MessagesIngested.WithLabelValues(string(proto)).Inc()
	}

	raw := protocol.RawMessage{Protocol: proto, Body: string(body)}

	// Audit copy first, exactly as posted. A message that fails matching
	// downstream can still be replayed from here.
	if err := h.registry.SaveRawMessage(ctx, machine.ID, proto, raw.Body); err != nil {
		h.logger.Error("raw message audit failed",
			zap.String("machine", machine.Name),
			zap.Error(err),
		)
		span.RecordError(err)
		h.jsonError(w, "failed to persist message", http.StatusInternalServerError)
		return
	}

	outcome, err := h.process(r, raw)
	if err != nil {
		h.logger.Error("result processing failed",
			zap.String("machine", machine.Name),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err),
		)
		span.RecordError(err)
		h.jsonError(w, "failed to save results", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}

	h.logger.Info("result message handled",
		zap.String("machine", machine.Name),
		zap.String("sample_id", outcome.SampleID),
		zap.String("status", outcome.Status),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	resp := IngestResponse{
		SampleID:     outcome.SampleID,
		SavingStatus: outcome.Status,
		Warnings:     outcome.Warnings,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// process runs the orchestrator, optionally through the idempotency inbox so
// a device resend returns the stored outcome instead of rewriting values.
func (h *ResultsHandler) process(r *http.Request, raw protocol.RawMessage) (*integration.Outcome, error) {
	ctx := r.Context()
	machine := middleware.GetMachine(ctx)

	if h.inbox == nil {
		return h.orchestrator.Process(ctx, raw, machine.ID)
	}

	key := idempotency.MessageKey(machine.ID.String(), string(raw.Protocol), raw.Body)
	result, err := h.inbox.Process(ctx, key, "ingest-results", func(ctx context.Context) (json.RawMessage, error) {
		outcome, err := h.orchestrator.Process(ctx, raw, machine.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(outcome)
	})
	if err != nil {
		return nil, err
	}

	var outcome integration.Outcome
	if err := json.Unmarshal(result, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (h *ResultsHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
