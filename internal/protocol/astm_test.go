package protocol

import "testing"

const astmMessage = "1H|\\^&|||BS-240^1.0|||||||P|E1394-97|20240101\r" +
	"2P|1\r" +
	"3O|1|SA-1001||^^^ALL|R\r" +
	"4R|1|^GLU^^mg/dL|5.46|mg/dL\r" +
	"5R|2|^UREA|7.2|mmol/L\r" +
	"6L|1|N"

func TestDecodeASTM(t *testing.T) {
	msg := Decode(astmMessage, ProtocolASTM)

	if msg.Header == nil {
		t.Fatal("header not decoded")
	}
	if got := msg.Header["sender_name_or_id"]; got != "BS-240^1.0" {
		t.Errorf("sender_name_or_id = %q", got)
	}

	if !msg.HasOrder() {
		t.Fatal("order not decoded")
	}
	if got := msg.SampleID(ProtocolASTM); got != "SA-1001" {
		t.Errorf("sample id = %q, want SA-1001", got)
	}

	if len(msg.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(msg.Results))
	}
	if msg.Results[0].ObservationID != "^GLU^^mg/dL" {
		t.Errorf("observation id = %q", msg.Results[0].ObservationID)
	}
	if msg.Results[0].Value != "5.46" {
		t.Errorf("value = %q", msg.Results[0].Value)
	}
	if msg.Results[1].Value != "7.2" {
		t.Errorf("second value = %q", msg.Results[1].Value)
	}

	if msg.Terminator == nil {
		t.Fatal("terminator not decoded")
	}
	if got := msg.Terminator["termination_code"]; got != "N" {
		t.Errorf("termination_code = %q", got)
	}
}

func TestDecodeASTMShortRecordsResolveEmpty(t *testing.T) {
	msg := Decode("1H|\\^&\r2O|1|\r3L|1|", ProtocolASTM)

	// Fields beyond the transmitted length must be present and empty
	if got, ok := msg.Header["date_time_of_message"]; !ok || got != "" {
		t.Errorf("absent header field = %q, present=%v", got, ok)
	}
	if got := msg.SampleID(ProtocolASTM); got != "" {
		t.Errorf("absent specimen id = %q", got)
	}
	if got, ok := msg.Order["specimen_type"]; !ok || got != "" {
		t.Errorf("absent order field = %q, present=%v", got, ok)
	}
}

func TestDecodeASTMIgnoresLinesAfterTerminator(t *testing.T) {
	raw := astmMessage + "\r7R|3|^CREA|88"
	msg := Decode(raw, ProtocolASTM)

	if len(msg.Results) != 2 {
		t.Errorf("results after L must be ignored, got %d", len(msg.Results))
	}
}

func TestDecodeASTMResultWithoutValue(t *testing.T) {
	msg := Decode("1H|\\^&\r2O|1|SA-2\r3R|1|^GLU\r4L|1", ProtocolASTM)

	if len(msg.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(msg.Results))
	}
	if msg.Results[0].Value != "" {
		t.Errorf("missing value must decode empty, got %q", msg.Results[0].Value)
	}
}

func TestDecodeASTMUnknownRecordTypeSkipped(t *testing.T) {
	msg := Decode("1H|\\^&\r2Q|1|junk|data\r3O|1|SA-3\r4L|1", ProtocolASTM)

	if got := msg.SampleID(ProtocolASTM); got != "SA-3" {
		t.Errorf("sample id = %q, want SA-3", got)
	}
}
