package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/labwire/go-lis/internal/domain/specimen"
	"github.com/labwire/go-lis/internal/protocol"
)

const astmGlucoseMessage = "1H|\\^&|||BS-240\r" +
	"2P|1\r" +
	"3O|1|SA-1001\r" +
	"4R|1|^GLU|5.456\r" +
	"5L|1|N"

func TestProcessRecordsAndRoundsValues(t *testing.T) {
	repo := newFakeRepo()
	two := 2
	specimenID := repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "GLU", Precision: &two})

	o := New(repo, DefaultConfig(), nil, nil)
	machineID := uuid.New()

	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}, machineID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.SampleID != "SA-1001" {
		t.Errorf("sample id = %q", outcome.SampleID)
	}
	if outcome.Written != 1 {
		t.Errorf("written = %d, want 1", outcome.Written)
	}
	if outcome.Status != "Processed — GLU:5.46" {
		t.Errorf("status = %q", outcome.Status)
	}
	if !repo.integrated[specimenID] {
		t.Error("specimen not flagged as machine integrated")
	}
	if len(repo.sets) != 1 || repo.sets[0].MachineID != machineID {
		t.Errorf("result set not attributed to machine: %+v", repo.sets)
	}
}

func TestProcessHL7Message(t *testing.T) {
	repo := newFakeRepo()
	repo.addSpecimen("FIL-2001", specimen.TestParameter{Code: "Glucose"})

	raw := "MSH|^~\\&|Sysmex\r" +
		"OBR|1||FIL-2001\r" +
		"OBX|1|NM|2345-7^Glucose^LN||5.4\r" +
		"OBX|2|NM|WBC||7.2"

	o := New(repo, DefaultConfig(), nil, nil)
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolHL7, Body: raw}, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Written != 1 {
		t.Errorf("written = %d, want 1 (WBC is not configured)", outcome.Written)
	}
	if !strings.HasPrefix(outcome.Status, "Processed — ") {
		t.Errorf("status = %q", outcome.Status)
	}
}

func TestProcessNoOrderSegment(t *testing.T) {
	o := New(newFakeRepo(), DefaultConfig(), nil, nil)

	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: "1H|\\^&\r2R|1|^GLU|5.4\r3L|1|"}, uuid.New())
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if outcome.Status != StatusNoOrderSegment {
		t.Errorf("status = %q", outcome.Status)
	}
}

func TestProcessNoSampleOrValues(t *testing.T) {
	o := New(newFakeRepo(), DefaultConfig(), nil, nil)

	// Order present but no specimen id and no results
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: "1H|\\^&\r2O|1|\r3L|1|"}, uuid.New())
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if outcome.Status != StatusNoSampleOrValue {
		t.Errorf("status = %q", outcome.Status)
	}
}

func TestProcessSampleNotFound(t *testing.T) {
	o := New(newFakeRepo(), DefaultConfig(), nil, nil)

	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}, uuid.New())
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if outcome.Status != StatusSampleNotFound {
		t.Errorf("status = %q", outcome.Status)
	}
	if outcome.SampleID != "SA-1001" {
		t.Errorf("sample id must survive the miss, got %q", outcome.SampleID)
	}
}

func TestProcessNothingMatched(t *testing.T) {
	repo := newFakeRepo()
	repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "UREA"})

	o := New(repo, DefaultConfig(), nil, nil)
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != StatusNothingMatched {
		t.Errorf("status = %q", outcome.Status)
	}
	if outcome.Written != 0 {
		t.Errorf("written = %d, want 0", outcome.Written)
	}
}

func TestProcessNonNumericValueWarns(t *testing.T) {
	repo := newFakeRepo()
	two := 2
	repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "GLU", Precision: &two})

	raw := "1H|\\^&\r2O|1|SA-1001\r3R|1|^GLU|trace\r4L|1|"
	o := New(repo, DefaultConfig(), nil, nil)
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: raw}, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != "Processed — GLU:trace" {
		t.Errorf("status = %q", outcome.Status)
	}
	if len(outcome.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", outcome.Warnings)
	}
}

func TestProcessRepositoryFailureIsAnError(t *testing.T) {
	repo := newFakeRepo()
	repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "GLU"})
	repo.writeErr = fmt.Errorf("deadlock detected")

	o := New(repo, DefaultConfig(), nil, nil)
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}, uuid.New())
	if err == nil {
		t.Fatal("repository failure must surface as an error")
	}
	if outcome == nil || outcome.Status != StatusSaveFailed {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestProcessNonAtomicWrites(t *testing.T) {
	repo := newFakeRepo()
	specimenID := repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "GLU"})

	o := New(repo, Config{AtomicWrites: false}, nil, nil)
	outcome, err := o.Process(context.Background(),
		protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Written != 1 {
		t.Errorf("written = %d", outcome.Written)
	}
	if !repo.integrated[specimenID] {
		t.Error("integration flag not set in per-parameter mode")
	}
	if len(repo.sets) != 0 {
		t.Error("per-parameter mode must not call WriteResultSet")
	}
}

// Redelivered messages write again on purpose: ingestion is at-least-once
// and last write wins unless the idempotency inbox is enabled upstream.
func TestProcessRedeliveryWritesAgain(t *testing.T) {
	repo := newFakeRepo()
	repo.addSpecimen("SA-1001", specimen.TestParameter{Code: "GLU"})

	o := New(repo, DefaultConfig(), nil, nil)
	msg := protocol.RawMessage{Protocol: protocol.ProtocolASTM, Body: astmGlucoseMessage}

	if _, err := o.Process(context.Background(), msg, uuid.New()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := o.Process(context.Background(), msg, uuid.New()); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(repo.sets) != 2 {
		t.Errorf("expected 2 write sets, got %d", len(repo.sets))
	}
}
