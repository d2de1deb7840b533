// Package langid identifies the language of already-extracted text using
// trigram statistics. Detection is deterministic for identical input and
// never fails: anything the detector cannot classify reports as "unknown".
package langid

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

const Unknown = "unknown"

// DetectText returns the ISO 639-3 code of the dominant language in text,
// or Unknown when the text is empty or the detector has nothing to go on.
func DetectText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return Unknown
	}
	info := whatlanggo.Detect(text)
	code := whatlanggo.LangToString(info.Lang)
	if code == "" {
		return Unknown
	}
	return code
}
