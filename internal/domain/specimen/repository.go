package specimen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/labwire/go-lis/internal/infrastructure/postgres"
	"github.com/labwire/go-lis/internal/infrastructure/redpanda"
	"github.com/labwire/go-lis/internal/protocol"
)

// ErrMachineNotFound is returned when no enabled machine matches a secret.
var ErrMachineNotFound = errors.New("machine not found")

// PgRepository implements Repository and MachineRegistry on PostgreSQL.
type PgRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgRepository creates a new repository.
func NewPgRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgRepository{pool: pool, logger: logger}
}

// FindReceivedByAccession returns received specimens for an accession number.
func (r *PgRepository) FindReceivedByAccession(ctx context.Context, sampleID string) ([]Specimen, error) {
	query := `
		SELECT id, accession_number, is_received, has_machine_integration, received_at, created_at
		FROM specimens
		WHERE accession_number = $1 AND is_received = TRUE
	`

	rows, err := r.pool.Query(ctx, query, sampleID)
	if err != nil {
		return nil, fmt.Errorf("query specimens: %w", err)
	}
	defer rows.Close()

	var specimens []Specimen
	for rows.Next() {
		var s Specimen
		err := rows.Scan(
			&s.ID, &s.AccessionNumber, &s.IsReceived,
			&s.HasMachineIntegration, &s.ReceivedAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan specimen: %w", err)
		}
		specimens = append(specimens, s)
	}
	return specimens, rows.Err()
}

// TestParameters returns the parameter set linked to a specimen.
func (r *PgRepository) TestParameters(ctx context.Context, specimenID uuid.UUID) ([]TestParameter, error) {
	query := `
		SELECT id, specimen_id, code, value, precision
		FROM specimen_test_parameters
		WHERE specimen_id = $1
		ORDER BY position ASC
	`

	rows, err := r.pool.Query(ctx, query, specimenID)
	if err != nil {
		return nil, fmt.Errorf("query test parameters: %w", err)
	}
	defer rows.Close()

	var params []TestParameter
	for rows.Next() {
		var p TestParameter
		if err := rows.Scan(&p.ID, &p.SpecimenID, &p.Code, &p.Value, &p.Precision); err != nil {
			return nil, fmt.Errorf("scan test parameter: %w", err)
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

// WriteParameterValue persists a single value. Last write wins; a device
// resend overwrites whatever an earlier post stored.
func (r *PgRepository) WriteParameterValue(ctx context.Context, parameterID uuid.UUID, value string) error {
	query := `
		UPDATE specimen_test_parameters
		SET value = $1, value_updated_at = NOW()
		WHERE id = $2
	`

	if _, err := r.pool.Exec(ctx, query, value, parameterID); err != nil {
		return fmt.Errorf("write parameter value: %w", err)
	}
	return nil
}

// MarkMachineIntegrated flags a specimen as carrying machine-sourced results.
func (r *PgRepository) MarkMachineIntegrated(ctx context.Context, specimenID uuid.UUID) error {
	query := `
		UPDATE specimens
		SET has_machine_integration = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, specimenID); err != nil {
		return fmt.Errorf("mark machine integrated: %w", err)
	}
	return nil
}

// WriteResultSet persists the whole write set, the integration flag, and a
// result.recorded outbox entry in one transaction. Parameter rows are locked
// for the duration of the read-modify-write so concurrent device posts for
// the same sample serialize instead of interleaving.
func (r *PgRepository) WriteResultSet(ctx context.Context, set ResultSet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT id FROM specimen_test_parameters
		WHERE specimen_id = $1
		FOR UPDATE
	`
	if _, err := tx.Exec(ctx, lockQuery, set.SpecimenID); err != nil {
		return fmt.Errorf("lock parameters: %w", err)
	}

	for _, w := range set.Writes {
		if err := r.writeValueTx(ctx, tx, w.ParameterID, w.Value); err != nil {
			return err
		}
	}

	flagQuery := `
		UPDATE specimens
		SET has_machine_integration = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, flagQuery, set.SpecimenID); err != nil {
		return fmt.Errorf("mark machine integrated: %w", err)
	}

	if err := r.writeOutboxTx(ctx, tx, set); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PgRepository) writeValueTx(ctx context.Context, tx pgx.Tx, parameterID uuid.UUID, value string) error {
	query := `
		UPDATE specimen_test_parameters
		SET value = $1, value_updated_at = NOW()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, query, value, parameterID); err != nil {
		return fmt.Errorf("write parameter value: %w", err)
	}
	return nil
}

// ResultRecordedEvent is the payload published for downstream consumers when
// a result set commits.
type ResultRecordedEvent struct {
	SpecimenID uuid.UUID         `json:"specimen_id"`
	SampleID   string            `json:"sample_id"`
	MachineID  uuid.UUID         `json:"machine_id"`
	Values     map[string]string `json:"values"`
	RecordedAt time.Time         `json:"recorded_at"`
}

func (r *PgRepository) writeOutboxTx(ctx context.Context, tx pgx.Tx, set ResultSet) error {
	event := ResultRecordedEvent{
		SpecimenID: set.SpecimenID,
		SampleID:   set.SampleID,
		MachineID:  set.MachineID,
		Values:     make(map[string]string, len(set.Writes)),
		RecordedAt: time.Now().UTC(),
	}
	for _, w := range set.Writes {
		event.Values[w.Code] = w.Value
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}

	return postgres.WriteEntry(ctx, tx, &postgres.OutboxEntry{
		AggregateID:   set.SpecimenID.String(),
		AggregateType: "Specimen",
		EventType:     "ResultRecorded",
		Payload:       payload,
		Topic:         redpanda.TopicResultRecorded,
		Key:           set.SampleID,
	})
}

// UnmatchedEvent is the payload published when a message resolves to no
// write.
type UnmatchedEvent struct {
	SampleID   string    `json:"sample_id"`
	MachineID  uuid.UUID `json:"machine_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RecordUnmatched publishes a result.unmatched outbox event.
func (r *PgRepository) RecordUnmatched(ctx context.Context, sampleID string, machineID uuid.UUID, status string) error {
	payload, err := json.Marshal(UnmatchedEvent{
		SampleID:   sampleID,
		MachineID:  machineID,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal unmatched event: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry := &postgres.OutboxEntry{
		AggregateID:   machineID.String(),
		AggregateType: "Machine",
		EventType:     "ResultUnmatched",
		Payload:       payload,
		Topic:         redpanda.TopicResultUnmatched,
		Key:           sampleID,
	}
	if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MachineBySecret resolves an enabled analyzer from its shared secret.
func (r *PgRepository) MachineBySecret(ctx context.Context, secret string) (*Machine, error) {
	query := `
		SELECT id, name, secret_key, protocol, enabled
		FROM processing_machines
		WHERE secret_key = $1 AND enabled = TRUE
	`

	m := &Machine{}
	err := r.pool.QueryRow(ctx, query, secret).Scan(&m.ID, &m.Name, &m.Secret, &m.Protocol, &m.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMachineNotFound
		}
		return nil, fmt.Errorf("query machine: %w", err)
	}
	return m, nil
}

// SaveRawMessage stores the payload exactly as posted, before decoding, for
// audit and replay, and commits an audit.trail event alongside it.
func (r *PgRepository) SaveRawMessage(ctx context.Context, machineID uuid.UUID, p protocol.Protocol, body string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	messageID := uuid.New()
	query := `
		INSERT INTO machine_messages (id, machine_id, protocol, body, received_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := tx.Exec(ctx, query, messageID, machineID, string(p), body); err != nil {
		return fmt.Errorf("save raw message: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"message_id": messageID,
		"machine_id": machineID,
		"protocol":   string(p),
		"body_size":  len(body),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   messageID.String(),
		AggregateType: "MachineMessage",
		EventType:     "RawMessageReceived",
		Payload:       payload,
		Topic:         redpanda.TopicAuditTrail,
		Key:           machineID.String(),
	}
	if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
