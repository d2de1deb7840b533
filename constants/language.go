package constants

// DefaultLanguages is the OCR language candidate set tried during image-level
// language detection. Order matters: the first candidate wins ties.
var DefaultLanguages = []string{"eng", "tam", "mal", "chi_sim"}

// FallbackLanguage is used when probing fails or yields no confidence data.
const FallbackLanguage = "eng"
