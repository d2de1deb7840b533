// Package rules implements the deterministic, regex-driven field extraction
// strategy. It needs no network and produces the same record-shaped mapping
// as the semantic parser, just from label matching alone.
package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/healthpassportsg/medrecords/internal/extract"
)

// labelSynonyms maps schema fields to the label spellings seen on records.
// Longer synonyms are listed first so "patient name" wins over "patient".
var labelSynonyms = map[string][]string{
	"name":    {"patient name", "pt name", "patient", "name"},
	"date":    {"visit date", "date"},
	"address": {"address", "addr"},
	"phone":   {"phone number", "phone", "contact no", "tel"},
	"refill":  {"refills", "refill"},
}

var totalSynonyms = map[string][]string{
	"before_subsidy": {"before subsidy"},
	"govt_subsidy":   {"govt subsidy", "government subsidy"},
	"before_gst":     {"before gst"},
	"gst_absorbed":   {"gst absorbed"},
	"gst":            {"gst"},
	"after_subsidy":  {"after subsidy"},
	"net_payment":    {"net payment"},
	"final_payable":  {"final payable", "total payable"},
}

var (
	reDate       = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	rePhone      = regexp.MustCompile(`\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}`)
	reAmount     = regexp.MustCompile(`\d+(?:\.\d{1,2})?`)
	reMedication = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z-]{2,})\s+(\d+(?:\.\d+)?\s?(?:mg|gram|ml|mcg|g))\b`)
)

// instructionDelimiters are the words an instruction segment tends to start
// around when several medications share one directions block.
var instructionDelimiters = map[string]struct{}{
	"pill": {}, "tablet": {}, "every": {}, "for": {},
}

// Matcher is the rule-based extract.FieldExtractor.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

func (m *Matcher) ExtractFields(_ context.Context, req extract.FieldRequest) (map[string]any, []byte, error) {
	text := req.CleanedText
	lines := strings.Split(text, "\n")

	patient := map[string]any{}
	totals := map[string]any{}

	for _, line := range lines {
		m.matchPatientLabels(line, patient)
		m.matchTotalLabels(line, totals)
	}

	// Medications are matched outside the directions block, where dosage
	// mentions ("take 500mg") would otherwise look like new drugs.
	medsText := text
	if dirStart := strings.Index(strings.ToLower(text), "directions"); dirStart >= 0 {
		medsText = text[:dirStart]
	}
	meds := findMedications(medsText)
	if block, ok := directionsBlock(text); ok && len(meds) > 0 {
		attributeInstructions(meds, block)
	}

	out := map[string]any{}
	if len(patient) > 0 {
		out["patient_details"] = patient
	}
	if len(totals) > 0 {
		out["totals"] = totals
	}
	if len(meds) > 0 {
		medList := make([]any, 0, len(meds))
		for _, md := range meds {
			medList = append(medList, map[string]any{
				"name":         md.name,
				"dosage":       md.dosage,
				"instructions": md.instructions,
			})
		}
		out["sections"] = map[string]any{"medications": medList}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Debug("rules.extract.ok",
		"patient_fields", len(patient), "totals", len(totals), "medications", len(meds))
	return out, raw, nil
}

func (m *Matcher) matchPatientLabels(line string, patient map[string]any) {
	lower := strings.ToLower(line)
	for field, synonyms := range labelSynonyms {
		if _, done := patient[field]; done {
			continue
		}
		for _, syn := range synonyms {
			idx := labelIndex(lower, syn)
			if idx < 0 {
				continue
			}
			rest := line[idx+len(syn):]
			var value string
			switch field {
			case "date":
				value = reDate.FindString(rest)
			case "phone":
				value = rePhone.FindString(rest)
			default:
				value = trimLabelSeparators(rest)
			}
			if value != "" {
				patient[field] = strings.TrimSpace(value)
			}
			break
		}
	}
}

func (m *Matcher) matchTotalLabels(line string, totals map[string]any) {
	lower := strings.ToLower(line)
	for field, synonyms := range totalSynonyms {
		if _, done := totals[field]; done {
			continue
		}
		for _, syn := range synonyms {
			idx := labelIndex(lower, syn)
			for idx >= 0 && field == "gst" && gstIsQualified(lower, idx) {
				// the bare "gst" synonym also sits inside "before gst" and
				// "gst absorbed"; those belong to other fields
				next := labelIndexFrom(lower, syn, idx+len(syn))
				idx = next
			}
			if idx < 0 {
				continue
			}
			if amount := reAmount.FindString(line[idx+len(syn):]); amount != "" {
				totals[field] = amount
			}
			break
		}
	}
}

func gstIsQualified(lower string, idx int) bool {
	before := strings.TrimRight(lower[:idx], " :-")
	if strings.HasSuffix(before, "before") {
		return true
	}
	after := strings.TrimLeft(lower[idx+len("gst"):], " :-")
	return strings.HasPrefix(after, "absorbed")
}

// labelIndex finds syn in lower as a whole-word label (not embedded in a
// longer word) and returns the match start, or -1.
func labelIndex(lower, syn string) int {
	return labelIndexFrom(lower, syn, 0)
}

func labelIndexFrom(lower, syn string, from int) int {
	for from <= len(lower) {
		rel := strings.Index(lower[from:], syn)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		end := idx + len(syn)
		startOK := idx == 0 || !isWordChar(lower[idx-1])
		endOK := end >= len(lower) || !isWordChar(lower[end])
		if startOK && endOK {
			return idx
		}
		from = idx + 1
	}
	return -1
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// trimLabelSeparators strips the ": -" style junk between a label and its
// value.
func trimLabelSeparators(s string) string {
	return strings.TrimLeft(strings.TrimSpace(s), ":-– \t")
}

type medication struct {
	name         string
	dosage       string
	instructions string
}

// findMedications picks up "<word> <number><unit>" pairs anywhere in the
// text. The label "directions"/"refill" lines never match because the
// pattern requires a unit suffix.
func findMedications(text string) []*medication {
	var meds []*medication
	for _, match := range reMedication.FindAllStringSubmatch(text, -1) {
		meds = append(meds, &medication{
			name:   match[1],
			dosage: strings.ReplaceAll(match[2], " ", ""),
		})
	}
	return meds
}

// directionsBlock returns the text between the "directions" keyword and the
// following "refill" keyword (or the end of the text when no refill line
// exists).
func directionsBlock(text string) (string, bool) {
	lower := strings.ToLower(text)
	start := strings.Index(lower, "directions")
	if start < 0 {
		return "", false
	}
	start += len("directions")
	end := strings.Index(lower[start:], "refill")
	var block string
	if end < 0 {
		block = text[start:]
	} else {
		block = text[start : start+end]
	}
	block = trimLabelSeparators(block)
	return strings.TrimSpace(block), block != ""
}

// attributeInstructions assigns the directions block to the medications.
// With a single medication the whole block is its instructions; otherwise
// the block is segmented on delimiter keywords, at most one split per
// additional medication, and trailing medications keep empty instructions
// when segments run out.
func attributeInstructions(meds []*medication, block string) {
	if len(meds) == 1 {
		meds[0].instructions = block
		return
	}
	segments := splitInstructionSegments(block, len(meds))
	for i, seg := range segments {
		if i >= len(meds) {
			meds[len(meds)-1].instructions += " " + seg
			continue
		}
		meds[i].instructions = seg
	}
}

func splitInstructionSegments(block string, n int) []string {
	words := strings.Fields(block)
	var segments []string
	var current []string
	anchored := false

	for _, w := range words {
		key := strings.ToLower(strings.Trim(w, ".,;:"))
		_, isDelim := instructionDelimiters[key]
		if isDelim && anchored && len(segments) < n-1 {
			segments = append(segments, strings.Join(current, " "))
			current = nil
			anchored = false
		}
		current = append(current, w)
		if isDelim {
			anchored = true
		}
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}
	return segments
}
