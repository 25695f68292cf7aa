package protocol

import "testing"

const hl7Message = "MSH|^~\\&|Sysmex|Lab|LIS|Hospital|20240101120000||ORU^R01|MSG001|P|2.3.1\r" +
	"PID|1||PAT-42||Doe^Jane\r" +
	"OBR|1|PLACER-1|FIL-2001|CBC^Complete Blood Count\r" +
	"OBX|1|NM|2345-7^Glucose^LN||5.46|mmol/L\r" +
	"OBX|2|NM|WBC||7.2|10*9/L"

func TestDecodeHL7(t *testing.T) {
	msg := Decode(hl7Message, ProtocolHL7)

	if msg.Header == nil {
		t.Fatal("MSH not decoded")
	}
	if got := msg.Header["field_separator"]; got != "|" {
		t.Errorf("field_separator = %q, want |", got)
	}
	if got := msg.Header["encoding_characters"]; got != "^~\\&" {
		t.Errorf("encoding_characters = %q", got)
	}
	if got := msg.Header["sending_application"]; got != "Sysmex" {
		t.Errorf("sending_application = %q", got)
	}
	if got := msg.Header["message_control_id"]; got != "MSG001" {
		t.Errorf("message_control_id = %q", got)
	}

	if msg.Patient == nil {
		t.Fatal("PID not decoded")
	}
	if got := msg.Patient["patient_name"]; got != "Doe^Jane" {
		t.Errorf("patient_name = %q", got)
	}

	if got := msg.SampleID(ProtocolHL7); got != "FIL-2001" {
		t.Errorf("sample id = %q, want FIL-2001", got)
	}
}

func TestDecodeHL7RepeatedOBXIsSequence(t *testing.T) {
	msg := Decode(hl7Message, ProtocolHL7)

	if len(msg.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(msg.Results))
	}
	if msg.Results[0].ObservationID != "2345-7^Glucose^LN" {
		t.Errorf("first observation id = %q", msg.Results[0].ObservationID)
	}
	if msg.Results[0].Value != "5.46" {
		t.Errorf("first value = %q", msg.Results[0].Value)
	}
	if msg.Results[1].ObservationID != "WBC" {
		t.Errorf("second observation id = %q", msg.Results[1].ObservationID)
	}
	if msg.Results[1].Value != "7.2" {
		t.Errorf("second value = %q", msg.Results[1].Value)
	}
}

func TestDecodeHL7SingleOBXIsStillSequence(t *testing.T) {
	raw := "MSH|^~\\&|A\rOBR|1||FIL-1\rOBX|1|NM|GLU||4.1"
	msg := Decode(raw, ProtocolHL7)

	if len(msg.Results) != 1 {
		t.Fatalf("expected a 1-element sequence, got %d", len(msg.Results))
	}
}

func TestDecodeHL7UnknownSegmentsAccumulate(t *testing.T) {
	raw := "MSH|^~\\&|A\rNTE|1||first note\rNTE|2||second note"
	msg := Decode(raw, ProtocolHL7)

	notes := msg.Extra["NTE"]
	if len(notes) != 2 {
		t.Fatalf("expected 2 NTE segments, got %d", len(notes))
	}
	if notes[0]["field_3"] != "first note" {
		t.Errorf("first NTE field_3 = %q", notes[0]["field_3"])
	}
	if notes[1]["field_3"] != "second note" {
		t.Errorf("second NTE field_3 = %q", notes[1]["field_3"])
	}
	if notes[0]["segment_name"] != "NTE" {
		t.Errorf("segment_name = %q", notes[0]["segment_name"])
	}
}

func TestDecodeHL7ShortOBXResolvesEmpty(t *testing.T) {
	msg := Decode("MSH|^~\\&|A\rOBX|1", ProtocolHL7)

	if len(msg.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(msg.Results))
	}
	if msg.Results[0].ObservationID != "" || msg.Results[0].Value != "" {
		t.Errorf("short OBX must decode empty, got %+v", msg.Results[0])
	}
	if got, ok := msg.Results[0].Extra["units"]; !ok || got != "" {
		t.Errorf("absent units = %q, present=%v", got, ok)
	}
}

func TestDecodeHL7NoOrder(t *testing.T) {
	msg := Decode("MSH|^~\\&|A\rOBX|1|NM|GLU||5.0", ProtocolHL7)

	if msg.HasOrder() {
		t.Error("message without OBR must not report an order")
	}
}
