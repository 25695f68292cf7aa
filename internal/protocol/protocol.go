// Package protocol decodes laboratory analyzer result messages transmitted in
// ASTM E1394 and HL7 v2 wire formats into a protocol-neutral form.
//
// Instrument firmware is not reliably protocol-compliant, so decoding is
// best-effort throughout: short segments resolve missing fields to empty
// strings and malformed lines are skipped rather than rejected.
package protocol

import "strings"

// Protocol identifies the wire format of an incoming message.
type Protocol string

const (
	ProtocolASTM Protocol = "ASTM"
	ProtocolHL7  Protocol = "HL7"
)

// Valid reports whether p is a supported protocol tag.
func (p Protocol) Valid() bool {
	return p == ProtocolASTM || p == ProtocolHL7
}

const (
	segmentDelimiter = "\r"
	fieldDelimiter   = "|"
)

// Keys under which the decoders store the specimen identifier in the order
// map. The two standards place the sample key at different positions; the
// asymmetry is intrinsic and must not be unified.
const (
	ASTMSampleKey = "specimen_id"
	HL7SampleKey  = "filler_order_number"
)

// RawMessage is an assembled message body as posted by an analyzer, tagged
// with its wire format. It is never mutated after ingestion.
type RawMessage struct {
	Protocol Protocol
	Body     string
}

// ResultRecord is one reported analyte. ObservationID is the compound code as
// transmitted (components joined by '^'); Value is the raw textual result,
// numeric interpretation is deferred to normalization.
type ResultRecord struct {
	ObservationID string
	Value         string
	Extra         map[string]string
}

// ParsedMessage is the protocol-neutral decoded form shared by both decoders.
// Field access on any of the maps is total: absent fields were stored as
// empty strings at decode time.
type ParsedMessage struct {
	Header     map[string]string
	Patient    map[string]string
	Order      map[string]string
	Results    []ResultRecord
	Terminator map[string]string

	// Extra holds segments the decoder does not model (HL7 only), keyed by
	// segment name. Repeated segments accumulate; a slot is always a
	// sequence, never a scalar.
	Extra map[string][]map[string]string
}

// SampleID returns the specimen identifier carried in the order segment, or
// the empty string if no order segment was decoded.
func (m *ParsedMessage) SampleID(p Protocol) string {
	if m.Order == nil {
		return ""
	}
	if p == ProtocolHL7 {
		return m.Order[HL7SampleKey]
	}
	return m.Order[ASTMSampleKey]
}

// HasOrder reports whether an order segment (O or OBR) was present.
func (m *ParsedMessage) HasOrder() bool {
	return m.Order != nil
}

// Decode tokenizes and decodes raw into a ParsedMessage using the decoder for
// the given protocol. Decoding never fails: a message with nothing
// recognizable in it decodes to an empty ParsedMessage.
func Decode(raw string, p Protocol) *ParsedMessage {
	lines := Tokenize(raw, p)
	if p == ProtocolHL7 {
		return decodeHL7(lines)
	}
	return decodeASTM(lines)
}

// Tokenize splits a raw message into per-segment field slices. Segments are
// separated by carriage returns; fields by pipes. For ASTM, a leading frame
// sequence digit is stripped and residual lines of three characters or fewer
// are discarded as checksum/frame noise.
func Tokenize(raw string, p Protocol) [][]string {
	var out [][]string
	for _, line := range strings.Split(raw, segmentDelimiter) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p == ProtocolASTM {
			if line[0] >= '0' && line[0] <= '9' {
				line = line[1:]
			}
			if len(line) <= 3 {
				continue
			}
		}
		out = append(out, strings.Split(line, fieldDelimiter))
	}
	return out
}

// fieldAt returns fields[i] or the empty string when the segment is shorter
// than the standard defines. Short segments are tolerated by contract.
func fieldAt(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// mapFields assigns fields onto names positionally, defaulting absent
// positions to the empty string.
func mapFields(fields []string, names []string) map[string]string {
	m := make(map[string]string, len(names))
	for i, name := range names {
		m[name] = fieldAt(fields, i)
	}
	return m
}
