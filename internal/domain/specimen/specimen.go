// Package specimen holds the domain model for specimens awaiting analyzer
// results and the repository boundary the integration core writes through.
package specimen

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labwire/go-lis/internal/protocol"
)

// Specimen is a physical sample tracked from collection through result
// reporting, identified by its accession number.
type Specimen struct {
	ID                    uuid.UUID
	AccessionNumber       string
	IsReceived            bool
	HasMachineIntegration bool
	ReceivedAt            *time.Time
	CreatedAt             time.Time
}

// TestParameter is one configured report parameter awaiting a value. Code is
// the machine-matchable identifier ("mcode") compared literally against the
// code extracted from an incoming observation identifier. Precision, when
// set, is the number of decimal places the stored value is rounded to.
type TestParameter struct {
	ID         uuid.UUID
	SpecimenID uuid.UUID
	Code       string
	Value      *string
	Precision  *int
}

// Machine is a registered analyzer allowed to post results. The ingestion
// endpoint resolves it from the shared secret before anything is decoded.
type Machine struct {
	ID       uuid.UUID
	Name     string
	Secret   string
	Protocol protocol.Protocol
	Enabled  bool
}

// ParameterWrite is one pending value assignment produced by matching.
// Value starts as the raw transmitted text and is replaced by its normalized
// form before persistence. Precision is carried over from the matched
// parameter's configuration.
type ParameterWrite struct {
	ParameterID uuid.UUID
	Code        string
	Value       string
	Precision   *int
}

// ResultSet is the full write set for one integration request targeting one
// specimen.
type ResultSet struct {
	SpecimenID uuid.UUID
	SampleID   string
	MachineID  uuid.UUID
	Writes     []ParameterWrite
}

// Repository is the persistence boundary consumed by the integration core.
// The core holds specimen state only for the duration of one request and
// never caches it across requests.
type Repository interface {
	// FindReceivedByAccession returns specimens whose accession number
	// equals sampleID and that have been physically received.
	FindReceivedByAccession(ctx context.Context, sampleID string) ([]Specimen, error)

	// TestParameters returns the parameter set linked to a specimen.
	TestParameters(ctx context.Context, specimenID uuid.UUID) ([]TestParameter, error)

	// WriteParameterValue persists a single normalized value. Each call is
	// an independent write with no cross-parameter atomicity.
	WriteParameterValue(ctx context.Context, parameterID uuid.UUID, value string) error

	// MarkMachineIntegrated flags a specimen as carrying machine-sourced
	// results.
	MarkMachineIntegrated(ctx context.Context, specimenID uuid.UUID) error

	// WriteResultSet persists every value in the set plus the integration
	// flag in one transaction, all-or-nothing.
	WriteResultSet(ctx context.Context, set ResultSet) error

	// RecordUnmatched publishes a result.unmatched event for a message that
	// resolved to no write, so operators can chase lost results.
	RecordUnmatched(ctx context.Context, sampleID string, machineID uuid.UUID, status string) error
}

// MachineRegistry resolves posting devices at the ingestion boundary.
type MachineRegistry interface {
	MachineBySecret(ctx context.Context, secret string) (*Machine, error)
	SaveRawMessage(ctx context.Context, machineID uuid.UUID, p protocol.Protocol, body string) error
}
