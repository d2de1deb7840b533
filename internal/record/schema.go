package record

// BuildJSONSchema returns a JSON-Schema (draft 2020-12 subset) for the
// structured record as a generic map. We pass this to the semantic parser as
// an output constraint and also use it locally to validate the reply.
func BuildJSONSchema() map[string]any {
	medication := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":         stringProp(),
			"dosage":       stringProp(),
			"instructions": stringProp(),
		},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_details": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    stringProp(),
					"date":    stringProp(),
					"address": stringProp(),
					"phone":   stringProp(),
					"refill":  stringProp(),
				},
				"required": []string{"name", "date", "address", "phone", "refill"},
			},
			"record_metadata": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"record_type":    stringProp(),
					"hospital_name":  stringProp(),
					"doctor_name":    stringProp(),
					"department":     stringProp(),
					"record_date":    stringProp(),
					"other_metadata": map[string]any{"type": "object"},
				},
				"required": []string{"record_type", "hospital_name", "doctor_name", "department", "record_date", "other_metadata"},
			},
			"sections": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"line_items":  map[string]any{"type": "array"},
					"medications": map[string]any{"type": "array", "items": medication},
					"lab_results": map[string]any{"type": "array"},
					"diagnoses":   map[string]any{"type": "array"},
				},
				"required": []string{"line_items", "medications", "lab_results", "diagnoses"},
			},
			"totals": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"before_subsidy": stringProp(),
					"govt_subsidy":   stringProp(),
					"before_gst":     stringProp(),
					"gst":            stringProp(),
					"gst_absorbed":   stringProp(),
					"after_subsidy":  stringProp(),
					"net_payment":    stringProp(),
					"final_payable":  stringProp(),
				},
				"required": []string{"before_subsidy", "govt_subsidy", "before_gst", "gst", "gst_absorbed", "after_subsidy", "net_payment", "final_payable"},
			},
			"other_details": map[string]any{"type": "object"},
		},
		"required": []string{"patient_details", "record_metadata", "sections", "totals", "other_details"},
	}
}

func stringProp() map[string]any {
	return map[string]any{"type": "string"}
}
