package attachments

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType returns the type of file. The payload is sniffed when
// present; a declared type is kept only while the sniffed type is
// inconclusive or of the same family, so a PDF declared as image/png reports
// application/pdf. The extension is the last resort. Parameters such as
// charset are dropped.
func DetectContentType(file File) string {
	declared := bareType(file.ContentType)
	sniffed := ""
	if len(file.Data) > 0 {
		sniffed = bareType(http.DetectContentType(file.Data))
	}

	contentType := declared
	switch {
	case sniffed == "" || sniffed == "application/octet-stream":
	case declared == "" || family(declared) != family(sniffed):
		contentType = sniffed
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := bareType(mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name)))); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" && sniffed != "" {
		contentType = sniffed
	}
	return contentType
}

func bareType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func family(contentType string) string {
	top, _, _ := strings.Cut(contentType, "/")
	return top
}

// Accepts reports whether contentType matches one of the patterns. Patterns
// are exact types or families such as "image/*". An empty list accepts
// everything.
func Accepts(patterns []string, contentType string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if family, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(contentType, family+"/") {
				return true
			}
			continue
		}
		if pattern == contentType {
			return true
		}
	}
	return false
}
