package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/labwire/go-lis/internal/domain/specimen"
	"github.com/labwire/go-lis/internal/observability/metrics"
	"github.com/labwire/go-lis/internal/protocol"
)

// Fixed status strings reported back to the posting device. Domain-level
// mismatches are described here, never surfaced as transport failures.
const (
	StatusNoOrderSegment  = "Not processed — order segment not found"
	StatusNoSampleOrValue = "Not processed — sample id and values not available"
	StatusSampleNotFound  = "Not processed — matching sample does not exist"
	StatusNothingMatched  = "Not processed — no reported parameter matched the sample"
	StatusSaveFailed      = "Not processed — saving results failed"
)

// Outcome is what one integration request resolves to. SampleID may be set
// even when Status reports a mismatch, if the message carried a usable id.
// Warnings collects recoverable normalization incidents for the caller to
// log or return.
type Outcome struct {
	SampleID string   `json:"sample_id"`
	Status   string   `json:"saving_status"`
	Written  int      `json:"written"`
	Warnings []string `json:"warnings,omitempty"`
}

// Config controls orchestrator behavior.
type Config struct {
	// AtomicWrites selects the single-transaction result-set write. When
	// false the orchestrator falls back to the historical per-parameter
	// independent writes, at-least-once and non-idempotent: a repository
	// failure mid-set leaves earlier writes committed.
	AtomicWrites bool
}

// DefaultConfig enables atomic writes.
func DefaultConfig() Config {
	return Config{AtomicWrites: true}
}

// Orchestrator sequences decode, match, normalize and persist for one
// inbound analyzer message.
type Orchestrator struct {
	repo    specimen.Repository
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates an orchestrator. metrics may be nil.
func New(repo specimen.Repository, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		repo:    repo,
		config:  cfg,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("result-integration"),
	}
}

// Process decodes raw, matches it against pending specimens, normalizes each
// value per its parameter's precision and persists the result set. machineID
// identifies the posting analyzer for downstream events. The returned error
// is non-nil only for repository failures; every domain-level mismatch
// resolves to a descriptive Outcome.
func (o *Orchestrator) Process(ctx context.Context, raw protocol.RawMessage, machineID uuid.UUID) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "process_result_message",
		trace.WithAttributes(
			attribute.String("protocol", string(raw.Protocol)),
			attribute.Int("body_size", len(raw.Body)),
		))
	defer span.End()

	parsed := protocol.Decode(raw.Body, raw.Protocol)

	matched, err := Match(ctx, parsed, raw.Protocol, o.repo)
	if err != nil {
		if outcome, ok := o.mismatchOutcome(matched, err); ok {
			span.SetAttributes(attribute.String("status", outcome.Status))
			o.countUnmatched()
			o.recordUnmatched(ctx, outcome, machineID)
			return outcome, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("match sample: %w", err)
	}
	span.SetAttributes(attribute.String("sample_id", matched.SampleID))

	outcome := &Outcome{SampleID: matched.SampleID}
	var written []string

	for i := range matched.Sets {
		set := &matched.Sets[i]
		set.MachineID = machineID

		for j := range set.Writes {
			w := &set.Writes[j]
			normalized, warning := Normalize(w.Value, w.Precision)
			if warning != "" {
				outcome.Warnings = append(outcome.Warnings, w.Code+": "+warning)
				o.logger.Warn("result value not normalized",
					zap.String("sample_id", matched.SampleID),
					zap.String("code", w.Code),
					zap.String("value", w.Value),
				)
			}
			w.Value = normalized
		}

		if len(set.Writes) == 0 {
			continue
		}

		if err := o.persist(ctx, *set); err != nil {
			span.RecordError(err)
			outcome.Status = StatusSaveFailed
			o.countFailed()
			return outcome, fmt.Errorf("persist result set: %w", err)
		}

		for _, w := range set.Writes {
			written = append(written, w.Code+":"+w.Value)
		}
		outcome.Written += len(set.Writes)
	}

	if outcome.Written == 0 {
		outcome.Status = StatusNothingMatched
		o.countUnmatched()
		o.recordUnmatched(ctx, outcome, machineID)
		return outcome, nil
	}

	outcome.Status = "Processed — " + strings.Join(written, ", ")
	o.countProcessed(outcome.Written)

	o.logger.Info("machine results recorded",
		zap.String("sample_id", matched.SampleID),
		zap.String("protocol", string(raw.Protocol)),
		zap.Int("parameters", outcome.Written),
	)
	return outcome, nil
}

// persist writes one specimen's set, atomically or per-parameter depending
// on configuration. The integration flag is set exactly once per specimen
// regardless of how many parameters were written.
func (o *Orchestrator) persist(ctx context.Context, set specimen.ResultSet) error {
	if o.config.AtomicWrites {
		return o.repo.WriteResultSet(ctx, set)
	}

	for _, w := range set.Writes {
		if err := o.repo.WriteParameterValue(ctx, w.ParameterID, w.Value); err != nil {
			return err
		}
	}
	return o.repo.MarkMachineIntegrated(ctx, set.SpecimenID)
}

// mismatchOutcome maps the recoverable match error taxonomy onto fixed
// status strings. Repository errors fall through.
func (o *Orchestrator) mismatchOutcome(matched *MatchedSample, err error) (*Outcome, bool) {
	sampleID := ""
	if matched != nil {
		sampleID = matched.SampleID
	}

	switch {
	case errors.Is(err, ErrMissingOrderSegment):
		return &Outcome{SampleID: sampleID, Status: StatusNoOrderSegment}, true
	case errors.Is(err, ErrMissingSampleOrValues):
		return &Outcome{SampleID: sampleID, Status: StatusNoSampleOrValue}, true
	case errors.Is(err, ErrSampleNotFound):
		return &Outcome{SampleID: sampleID, Status: StatusSampleNotFound}, true
	}
	return nil, false
}

// recordUnmatched is best-effort: a mismatch is already answered to the
// device, losing the event must not turn it into a failure.
func (o *Orchestrator) recordUnmatched(ctx context.Context, outcome *Outcome, machineID uuid.UUID) {
	if err := o.repo.RecordUnmatched(ctx, outcome.SampleID, machineID, outcome.Status); err != nil {
		o.logger.Error("failed to record unmatched event",
			zap.String("sample_id", outcome.SampleID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) countProcessed(params int) {
	if o.metrics == nil {
		return
	}
	o.metrics.MessagesProcessed.Inc()
	o.metrics.ParametersWritten.Add(float64(params))
}

func (o *Orchestrator) countUnmatched() {
	if o.metrics == nil {
		return
	}
	o.metrics.MessagesUnmatched.Inc()
}

func (o *Orchestrator) countFailed() {
	if o.metrics == nil {
		return
	}
	o.metrics.MessagesFailed.Inc()
}
