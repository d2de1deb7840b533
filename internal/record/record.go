// Package record defines the normalized medical record schema and its
// post-extraction normalization rules.
package record

// PatientDetails holds patient-facing fields. Unknown values are empty
// strings, never null.
type PatientDetails struct {
	Name    string `json:"name"`
	Date    string `json:"date"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Refill  string `json:"refill"`
}

// RecordMetadata describes the document itself.
type RecordMetadata struct {
	RecordType    string         `json:"record_type"`
	HospitalName  string         `json:"hospital_name"`
	DoctorName    string         `json:"doctor_name"`
	Department    string         `json:"department"`
	RecordDate    string         `json:"record_date"`
	OtherMetadata map[string]any `json:"other_metadata"`
}

// Medication is one drug entry with free-text dosage and instructions.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
}

// Sections holds the repeated content blocks of a record.
type Sections struct {
	LineItems   []any        `json:"line_items"`
	Medications []Medication `json:"medications"`
	LabResults  []any        `json:"lab_results"`
	Diagnoses   []any        `json:"diagnoses"`
}

// Totals holds billing amounts as strings, exactly as printed on the record.
type Totals struct {
	BeforeSubsidy string `json:"before_subsidy"`
	GovtSubsidy   string `json:"govt_subsidy"`
	BeforeGST     string `json:"before_gst"`
	GST           string `json:"gst"`
	GSTAbsorbed   string `json:"gst_absorbed"`
	AfterSubsidy  string `json:"after_subsidy"`
	NetPayment    string `json:"net_payment"`
	FinalPayable  string `json:"final_payable"`
}

// StructuredRecord is the fixed output schema of the extraction pipeline.
// Every key is always present; collections are empty rather than nil so the
// JSON artifact never contains null.
type StructuredRecord struct {
	PatientDetails PatientDetails `json:"patient_details"`
	RecordMetadata RecordMetadata `json:"record_metadata"`
	Sections       Sections       `json:"sections"`
	Totals         Totals         `json:"totals"`
	OtherDetails   map[string]any `json:"other_details"`
}

// New returns a StructuredRecord with all collections initialized.
func New() StructuredRecord {
	return StructuredRecord{
		RecordMetadata: RecordMetadata{OtherMetadata: map[string]any{}},
		Sections: Sections{
			LineItems:   []any{},
			Medications: []Medication{},
			LabResults:  []any{},
			Diagnoses:   []any{},
		},
		OtherDetails: map[string]any{},
	}
}
