package constants

import "strings"

// Document formats the pipeline understands.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// AllowedExtensions holds the file extensions accepted for record ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat classifies a normalized extension into PDF or IMAGE.
// Returns "" for anything we do not support.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}
