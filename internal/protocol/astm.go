package protocol

// ASTMRecordType is the single-character record discriminator of an ASTM
// E1394 line. Unknown record types are ignored by the decoder.
type ASTMRecordType byte

const (
	ASTMHeader     ASTMRecordType = 'H'
	ASTMPatient    ASTMRecordType = 'P'
	ASTMOrder      ASTMRecordType = 'O'
	ASTMResult     ASTMRecordType = 'R'
	ASTMTerminator ASTMRecordType = 'L'
)

// Positional field names per record type. Index 0 is always the record type
// discriminator itself.
var (
	astmHeaderFields = []string{
		"record_type_id",
		"delimiter_definition",
		"message_control_id",
		"access_password",
		"sender_name_or_id",
		"sender_street_address",
		"reserved_field",
		"sender_telephone_number",
		"characteristics_of_sender",
		"receiver_id",
		"comment_or_special_instructions",
		"processing_id",
		"version_number",
		"date_time_of_message",
	}

	astmPatientFields = []string{
		"record_type_id",
		"sequence_number",
	}

	astmOrderFields = []string{
		"record_type_id",
		"sequence_number",
		"specimen_id",
		"instrument_specimen_id",
		"universal_test_id",
		"priority",
		"requested_date_time",
		"collection_date_time",
		"collection_end_time",
		"collection_volume",
		"collector_id",
		"action_code",
		"danger_code",
		"relevant_clinical_info",
		"date_time_specimen_received",
		"specimen_descriptor",
		"ordering_physician",
		"physician_telephone",
		"user_field_1",
		"user_field_2",
		"laboratory_field_1",
		"laboratory_field_2",
		"date_time_results_reported",
		"instrument_charge",
		"instrument_section_id",
		"report_type",
		"reserved_field",
		"location_of_specimen_collection",
		"nosocomial_infection_flag",
		"specimen_service",
		"specimen_institution",
		"specimen_source",
		"specimen_type",
	}

	astmResultFields = []string{
		"record_type_id",
		"sequence_number",
		"universal_test_id",
		"data_or_measurement_value",
		"units",
		"reference_ranges",
		"result_abnormal_flags",
		"nature_of_abnormality_testing",
		"result_status",
		"date_of_change_in_instrument",
		"operator_identification",
		"date_time_test_started",
		"date_time_test_completed",
	}

	astmTerminatorFields = []string{
		"record_type_id",
		"sequence_number",
		"termination_code",
	}
)

// decodeASTM walks the tokenized lines keyed on the record type character.
// Every R line appends one ResultRecord; lines after the L terminator are
// ignored. Repeated H/P/O/L lines overwrite, matching instrument behavior of
// one logical record per message.
func decodeASTM(lines [][]string) *ParsedMessage {
	msg := &ParsedMessage{}

	for _, fields := range lines {
		if len(fields) == 0 || len(fields[0]) != 1 {
			continue
		}

		switch ASTMRecordType(fields[0][0]) {
		case ASTMHeader:
			msg.Header = mapFields(fields, astmHeaderFields)
		case ASTMPatient:
			msg.Patient = mapFields(fields, astmPatientFields)
		case ASTMOrder:
			msg.Order = mapFields(fields, astmOrderFields)
		case ASTMResult:
			msg.Results = append(msg.Results, ResultRecord{
				ObservationID: fieldAt(fields, 2),
				Value:         fieldAt(fields, 3),
				Extra:         mapFields(fields, astmResultFields),
			})
		case ASTMTerminator:
			msg.Terminator = mapFields(fields, astmTerminatorFields)
			return msg
		}
	}

	return msg
}
