package protocol

import (
	"fmt"
	"strings"
)

// HL7Segment is the three-letter segment name of an HL7 v2 line. Segments
// outside the modeled set decode into the generic Extra map.
type HL7Segment string

const (
	HL7MSH HL7Segment = "MSH"
	HL7PID HL7Segment = "PID"
	HL7OBR HL7Segment = "OBR"
	HL7OBX HL7Segment = "OBX"
)

var (
	// MSH-1 is the field separator, which is also the character the line was
	// split on, so it is recovered positionally from the raw segment rather
	// than from the split fields.
	hl7MSHFields = []string{
		"segment_name",
		"field_separator",
		"encoding_characters",
		"sending_application",
		"sending_facility",
		"receiving_application",
		"receiving_facility",
		"date_time_of_message",
		"security",
		"message_type",
		"message_control_id",
		"processing_id",
		"version_id",
		"sequence_number",
		"continuation_pointer",
		"accept_acknowledgment_type",
		"application_acknowledgment_type",
		"country_code",
		"character_set",
		"principal_language",
	}

	hl7PIDFields = []string{
		"segment_name",
		"set_id",
		"patient_id",
		"patient_identifier_list",
		"alternate_patient_id",
		"patient_name",
		"mothers_maiden_name",
		"date_time_of_birth",
		"administrative_sex",
		"patient_alias",
		"race",
		"patient_address",
		"county_code",
		"phone_number_home",
		"phone_number_business",
		"primary_language",
		"marital_status",
		"religion",
		"patient_account_number",
		"ssn_number",
		"drivers_license_number",
		"mothers_identifier",
		"ethnic_group",
		"birth_place",
		"multiple_birth_indicator",
		"birth_order",
		"citizenship",
		"veterans_military_status",
		"nationality",
		"patient_death_date_time",
		"patient_death_indicator",
	}

	hl7OBRFields = []string{
		"segment_name",
		"set_id",
		"placer_order_number",
		"filler_order_number",
		"universal_service_identifier",
		"priority",
		"requested_date_time",
		"observation_date_time",
		"observation_end_date_time",
		"collection_volume",
		"collector_identifier",
		"specimen_action_code",
		"danger_code",
		"relevant_clinical_information",
		"specimen_received_date_time",
		"specimen_source",
		"ordering_provider",
		"order_callback_phone_number",
		"placer_field_1",
		"placer_field_2",
		"filler_field_1",
		"filler_field_2",
		"results_report_status_change",
		"charge_to_practice",
		"diagnostic_service_section_id",
		"result_status",
		"parent_result",
		"quantity_timing",
		"result_copies_to",
		"parent",
		"transportation_mode",
		"reason_for_study",
		"principal_result_interpreter",
		"assistant_result_interpreter",
		"technician",
		"transcriptionist",
		"scheduled_date_time",
		"number_of_sample_containers",
		"transport_logistics",
		"collectors_comment",
		"transport_arrangement_responsibility",
		"transport_arranged",
		"escort_required",
		"planned_transport_comment",
	}

	hl7OBXFields = []string{
		"segment_name",
		"set_id",
		"value_type",
		"observation_identifier",
		"observation_sub_id",
		"observation_value",
		"units",
		"references_range",
		"abnormal_flags",
		"probability",
		"nature_of_abnormal_test",
		"observation_result_status",
		"effective_date_of_reference_range",
		"user_defined_access_checks",
		"date_time_of_observation",
		"producers_id",
		"responsible_observer",
		"observation_method",
		"equipment_instance_identifier",
		"date_time_of_analysis",
	}
)

// decodeHL7 maps named segments onto the ParsedMessage. Every OBX yields one
// ResultRecord in transmission order, so repeated observation segments are
// always exposed as a sequence; callers never see a scalar-or-sequence dual
// shape. Unrecognized segment names accumulate under Extra as generic
// field_1..N maps.
func decodeHL7(lines [][]string) *ParsedMessage {
	msg := &ParsedMessage{}

	for _, fields := range lines {
		if len(fields) == 0 {
			continue
		}

		switch HL7Segment(fields[0]) {
		case HL7MSH:
			msg.Header = decodeMSH(fields)
		case HL7PID:
			msg.Patient = mapFields(fields, hl7PIDFields)
		case HL7OBR:
			msg.Order = mapFields(fields, hl7OBRFields)
		case HL7OBX:
			msg.Results = append(msg.Results, ResultRecord{
				ObservationID: fieldAt(fields, 3),
				Value:         fieldAt(fields, 5),
				Extra:         mapFields(fields, hl7OBXFields),
			})
		default:
			if msg.Extra == nil {
				msg.Extra = make(map[string][]map[string]string)
			}
			msg.Extra[fields[0]] = append(msg.Extra[fields[0]], genericFields(fields))
		}
	}

	return msg
}

// decodeMSH rebuilds the header map. The separator character immediately
// follows "MSH" in the raw segment; rejoining the split fields reconstructs
// enough of the raw line to read it back out.
func decodeMSH(fields []string) map[string]string {
	m := make(map[string]string, len(hl7MSHFields))
	m["segment_name"] = fieldAt(fields, 0)

	raw := strings.Join(fields, fieldDelimiter)
	if len(raw) > 3 {
		m["field_separator"] = string(raw[3])
	} else {
		m["field_separator"] = ""
	}

	// MSH-2 onward line up with split index 1 onward: splitting on the
	// separator consumes MSH-1 itself.
	for i, name := range hl7MSHFields[2:] {
		m[name] = fieldAt(fields, i+1)
	}
	return m
}

// genericFields builds the fallback field_1..N map for unmodeled segments.
func genericFields(fields []string) map[string]string {
	m := make(map[string]string, len(fields))
	m["segment_name"] = fields[0]
	for i, v := range fields[1:] {
		m[fmt.Sprintf("field_%d", i+1)] = v
	}
	return m
}
