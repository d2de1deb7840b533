package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSchemaCompletion(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{name: "nil input", raw: nil},
		{name: "empty mapping", raw: map[string]any{}},
		{name: "nulls everywhere", raw: map[string]any{
			"patient_details": map[string]any{"name": nil, "date": nil},
			"sections":        map[string]any{"medications": nil, "diagnoses": nil},
			"totals":          nil,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Normalize(tt.raw)

			b, err := EncodeJSON(rec)
			require.NoError(t, err)
			var m map[string]any
			require.NoError(t, json.Unmarshal(b, &m))

			for _, key := range []string{"patient_details", "record_metadata", "sections", "totals", "other_details"} {
				assert.Contains(t, m, key)
			}
			sec, ok := m["sections"].(map[string]any)
			require.True(t, ok)
			for _, key := range []string{"line_items", "medications", "lab_results", "diagnoses"} {
				assert.IsType(t, []any{}, sec[key], "section %s must be a list, never null", key)
			}
			assert.Equal(t, "", m["patient_details"].(map[string]any)["name"])
			assert.Equal(t, "", m["totals"].(map[string]any)["net_payment"])
		})
	}
}

func TestNormalizeDigitConfusionRepair(t *testing.T) {
	rec := Normalize(map[string]any{
		"patient_details": map[string]any{
			"name":  "  OK ",   // no digits: trim only
			"phone": "9O123456", // digit present: O -> 0
		},
		"totals": map[string]any{
			"net_payment": "1O2",
		},
	})
	assert.Equal(t, "OK", rec.PatientDetails.Name)
	assert.Equal(t, "90123456", rec.PatientDetails.Phone)
	assert.Equal(t, "102", rec.Totals.NetPayment)
}

func TestNormalizeBackfills(t *testing.T) {
	t.Run("net payment backfilled from after subsidy", func(t *testing.T) {
		rec := Normalize(map[string]any{
			"totals": map[string]any{"after_subsidy": "120.00", "net_payment": ""},
		})
		assert.Equal(t, "120.00", rec.Totals.NetPayment)
	})

	t.Run("existing net payment preserved", func(t *testing.T) {
		rec := Normalize(map[string]any{
			"totals": map[string]any{"after_subsidy": "120.00", "net_payment": "100.00"},
		})
		assert.Equal(t, "100.00", rec.Totals.NetPayment)
	})

	t.Run("patient date backfilled from record date", func(t *testing.T) {
		rec := Normalize(map[string]any{
			"record_metadata": map[string]any{"record_date": "12/03/2024"},
		})
		assert.Equal(t, "12/03/2024", rec.PatientDetails.Date)
	})

	t.Run("backfill is one directional", func(t *testing.T) {
		rec := Normalize(map[string]any{
			"patient_details": map[string]any{"date": "01/01/2024"},
			"record_metadata": map[string]any{"record_date": ""},
		})
		assert.Equal(t, "", rec.RecordMetadata.RecordDate)
		assert.Equal(t, "01/01/2024", rec.PatientDetails.Date)
	})
}

func TestNormalizeMedications(t *testing.T) {
	rec := Normalize(map[string]any{
		"sections": map[string]any{
			"medications": []any{
				map[string]any{"name": "Amoxicillin", "dosage": "500mg", "instructions": nil},
				"Metformin 850mg",
			},
		},
	})
	require.Len(t, rec.Sections.Medications, 2)
	assert.Equal(t, Medication{Name: "Amoxicillin", Dosage: "500mg"}, rec.Sections.Medications[0])
	assert.Equal(t, "Metformin 850mg", rec.Sections.Medications[1].Name)
}

func TestNormalizeNestedCollections(t *testing.T) {
	rec := Normalize(map[string]any{
		"other_details": map[string]any{
			"queue": nil,
			"room":  " B2 Ward 1O ",
			"notes": []any{nil, "follow up"},
		},
	})
	assert.Equal(t, "", rec.OtherDetails["queue"])
	// digit present, so O-folding applies and whitespace survives
	assert.Equal(t, " B2 Ward 10 ", rec.OtherDetails["room"])
	assert.Equal(t, []any{"", "follow up"}, rec.OtherDetails["notes"])
}

func TestEncodeJSONPreservesNonASCII(t *testing.T) {
	rec := New()
	rec.RecordMetadata.HospitalName = "陈笃生医院"
	b, err := EncodeJSON(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), "陈笃生医院")
	assert.NotContains(t, string(b), `\u`)
}
