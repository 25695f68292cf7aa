package protocol

import "testing"

func TestExtractCodeASTM(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"^GLU^^mg/dL", "GLU mg/dL"},
		{"GLU", "GLU"},
		{"^^^", ""},
		{"", ""},
		{"A^B^C", "A B C"},
	}

	for _, tt := range tests {
		if got := ExtractCode(tt.in, ProtocolASTM); got != tt.want {
			t.Errorf("ExtractCode(%q, ASTM) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractCodeHL7(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2345-7^Glucose^LN", "Glucose"},
		{"GLU", "GLU"},
		// An empty second component is still the second component
		{"2345-7^", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractCode(tt.in, ProtocolHL7); got != tt.want {
			t.Errorf("ExtractCode(%q, HL7) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
