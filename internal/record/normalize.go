package record

import "strings"

// Normalize converts a raw extraction payload (possibly partial, possibly
// containing nulls) into a complete StructuredRecord. It guarantees schema
// completion: every key exists in the output even when the input is empty.
//
// Scalar repair: nulls become empty strings; a string containing at least
// one digit gets its "O" characters folded to "0" (a common misread), while
// digit-free strings are only trimmed. The O-folding is a coarse heuristic
// and can corrupt mixed identifiers like "AB10C"; it is kept for
// compatibility with the values downstream consumers already expect.
//
// Backfills run last and never overwrite a non-empty target:
// totals.net_payment <- totals.after_subsidy and
// patient_details.date <- record_metadata.record_date.
func Normalize(raw map[string]any) StructuredRecord {
	rec := New()
	if raw == nil {
		return rec
	}

	if pd := asMap(raw["patient_details"]); pd != nil {
		rec.PatientDetails = PatientDetails{
			Name:    cleanString(pd["name"]),
			Date:    cleanString(pd["date"]),
			Address: cleanString(pd["address"]),
			Phone:   cleanString(pd["phone"]),
			Refill:  cleanString(pd["refill"]),
		}
	}

	if md := asMap(raw["record_metadata"]); md != nil {
		rec.RecordMetadata = RecordMetadata{
			RecordType:    cleanString(md["record_type"]),
			HospitalName:  cleanString(md["hospital_name"]),
			DoctorName:    cleanString(md["doctor_name"]),
			Department:    cleanString(md["department"]),
			RecordDate:    cleanString(md["record_date"]),
			OtherMetadata: cleanMap(asMap(md["other_metadata"])),
		}
	}

	if sec := asMap(raw["sections"]); sec != nil {
		rec.Sections = Sections{
			LineItems:   cleanList(asList(sec["line_items"])),
			Medications: cleanMedications(asList(sec["medications"])),
			LabResults:  cleanList(asList(sec["lab_results"])),
			Diagnoses:   cleanList(asList(sec["diagnoses"])),
		}
	}

	if tot := asMap(raw["totals"]); tot != nil {
		rec.Totals = Totals{
			BeforeSubsidy: cleanString(tot["before_subsidy"]),
			GovtSubsidy:   cleanString(tot["govt_subsidy"]),
			BeforeGST:     cleanString(tot["before_gst"]),
			GST:           cleanString(tot["gst"]),
			GSTAbsorbed:   cleanString(tot["gst_absorbed"]),
			AfterSubsidy:  cleanString(tot["after_subsidy"]),
			NetPayment:    cleanString(tot["net_payment"]),
			FinalPayable:  cleanString(tot["final_payable"]),
		}
	}

	rec.OtherDetails = cleanMap(asMap(raw["other_details"]))

	// one-directional backfills, after null coercion
	if rec.Totals.NetPayment == "" && rec.Totals.AfterSubsidy != "" {
		rec.Totals.NetPayment = rec.Totals.AfterSubsidy
	}
	if rec.PatientDetails.Date == "" && rec.RecordMetadata.RecordDate != "" {
		rec.PatientDetails.Date = rec.RecordMetadata.RecordDate
	}
	return rec
}

// RepairString applies the digit-confusion heuristic to a single string.
func RepairString(s string) string {
	if containsDigit(s) {
		return strings.ReplaceAll(s, "O", "0")
	}
	return strings.TrimSpace(s)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// cleanString coerces an arbitrary scalar into a repaired string. Non-string
// scalars (numbers the parser emitted unquoted) are not round-tripped; only
// string values carry over, everything else maps to "".
func cleanString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return RepairString(s)
}

// cleanValue walks an arbitrary value, coercing nulls and repairing strings.
func cleanValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return RepairString(t)
	case map[string]any:
		return cleanMap(t)
	case []any:
		return cleanList(t)
	default:
		return v
	}
}

func cleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cleanValue(v)
	}
	return out
}

func cleanList(l []any) []any {
	out := make([]any, 0, len(l))
	for _, v := range l {
		out = append(out, cleanValue(v))
	}
	return out
}

// cleanMedications accepts both object entries ({name,dosage,instructions})
// and bare-string entries, which some extraction paths emit.
func cleanMedications(l []any) []Medication {
	out := make([]Medication, 0, len(l))
	for _, v := range l {
		switch t := v.(type) {
		case map[string]any:
			out = append(out, Medication{
				Name:         cleanString(t["name"]),
				Dosage:       cleanString(t["dosage"]),
				Instructions: cleanString(t["instructions"]),
			})
		case string:
			out = append(out, Medication{Name: RepairString(t)})
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}
