package ingestion

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
)

// maxExtractBytes bounds how much of a stored file extraction will read.
const maxExtractBytes = 16 << 20 // 16 MiB

var textMimePrefixes = []string{
	"text/",
	"application/json",
	"application/xml",
	"application/x-ndjson",
}

// ExtractText reads a stored document stream and returns its plain text.
// Only text-bearing media types are supported; binary or empty content fails
// with an extraction error so the document analyzer can record a
// user-readable failure on the record.
func ExtractText(r io.Reader, mimeType string) (string, error) {
	if r == nil {
		return "", apperr.Newf(apperr.KindExtraction, "no file content to extract")
	}

	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && !isTextMime(mt) {
		return "", apperr.Newf(apperr.KindExtraction, "unsupported media type %q: only text content can be analyzed", mt)
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxExtractBytes+1))
	if err != nil {
		return "", apperr.Newf(apperr.KindExtraction, "unreadable file content: %v", err)
	}
	if len(raw) > maxExtractBytes {
		return "", apperr.Newf(apperr.KindExtraction, "file exceeds the %d MiB extraction limit", maxExtractBytes>>20)
	}

	text := string(raw)
	if !utf8.ValidString(text) || strings.ContainsRune(text, '\x00') {
		return "", apperr.Newf(apperr.KindExtraction, "file is not decodable text (binary or unsupported encoding)")
	}

	text = normalizeText(text)
	if text == "" {
		return "", apperr.Newf(apperr.KindExtraction, "no extractable text found: file is empty or unreadable")
	}
	return text, nil
}

func isTextMime(mt string) bool {
	for _, p := range textMimePrefixes {
		if strings.HasPrefix(mt, p) {
			return true
		}
	}
	return false
}
