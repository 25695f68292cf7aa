package protocol

import "testing"

func TestTokenizeASTMStripsFrameDigitsAndNoise(t *testing.T) {
	raw := "1H|\\^&|||Mindray^BS-240\r" +
		"2P|1\r" +
		"3O|1|SA-1001\r" +
		"C8F\r" +
		"4R|1|^GLU|5.4\r" +
		"5L|1|N"

	lines := Tokenize(raw, ProtocolASTM)
	if len(lines) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(lines))
	}
	if lines[0][0] != "H" {
		t.Errorf("frame digit not stripped: %q", lines[0][0])
	}
	for _, fields := range lines {
		if fields[0] == "C8F" {
			t.Error("checksum residue not discarded")
		}
	}
}

func TestTokenizeASTMDiscardsShortLines(t *testing.T) {
	// After stripping the leading digit these are 3 chars or fewer
	raw := "1AB\r2XYZ\r3H|\\^&|||Analyzer"

	lines := Tokenize(raw, ProtocolASTM)
	if len(lines) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(lines))
	}
	if lines[0][0] != "H" {
		t.Errorf("unexpected first field %q", lines[0][0])
	}
}

func TestTokenizeHL7KeepsLeadingDigits(t *testing.T) {
	// HL7 tokenization must not strip anything or discard short lines
	raw := "MSH|^~\\&|LIS\rPID|1\rOBX|1|NM|GLU||5.4"

	lines := Tokenize(raw, ProtocolHL7)
	if len(lines) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(lines))
	}
	if lines[1][0] != "PID" {
		t.Errorf("unexpected segment %q", lines[1][0])
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	if lines := Tokenize("", ProtocolASTM); len(lines) != 0 {
		t.Errorf("expected no segments, got %d", len(lines))
	}
	if lines := Tokenize("\r\r\r", ProtocolHL7); len(lines) != 0 {
		t.Errorf("expected no segments, got %d", len(lines))
	}
}

func TestProtocolValid(t *testing.T) {
	if !ProtocolASTM.Valid() || !ProtocolHL7.Valid() {
		t.Error("known protocols must be valid")
	}
	if Protocol("FHIR").Valid() {
		t.Error("unknown protocol must be invalid")
	}
}

func TestSampleIDWithoutOrder(t *testing.T) {
	msg := &ParsedMessage{}
	if msg.HasOrder() {
		t.Error("empty message must not report an order")
	}
	if got := msg.SampleID(ProtocolASTM); got != "" {
		t.Errorf("expected empty sample id, got %q", got)
	}
}
