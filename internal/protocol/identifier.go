package protocol

import "strings"

const componentDelimiter = "^"

// ExtractCode pulls the human-readable parameter code out of a compound
// observation identifier.
//
// The two protocols follow different real-world instrument conventions and
// the asymmetry is intentional:
//
//	ASTM: all non-empty '^' components joined with a single space,
//	      "^GLU^^mg/dL" -> "GLU mg/dL"
//	HL7:  second component when present, else the first,
//	      "2345-7^Glucose^LN" -> "Glucose", "GLU" -> "GLU"
func ExtractCode(observationID string, p Protocol) string {
	parts := strings.Split(observationID, componentDelimiter)

	if p == ProtocolHL7 {
		if len(parts) > 1 {
			return parts[1]
		}
		return parts[0]
	}

	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}
