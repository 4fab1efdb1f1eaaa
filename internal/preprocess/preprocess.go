// Package preprocess provides deterministic text extraction, canonicalization,
// and content hashing for evidence payloads.
package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxTextLen caps extracted text to avoid storing megabytes in a single row.
const MaxTextLen = 200_000

// Document holds the evidence fields that feed canonical text construction.
type Document struct {
	Title         string
	Description   string
	EvidenceType  string
	SourceType    string
	ExtractedText string
}

// Canonical builds the canonical classification text for a document: the
// non-empty fields joined by newlines, trimmed, with retrieval hints appended.
// The result is capped at MaxTextLen.
func Canonical(doc Document) (string, []string) {
	parts := []string{
		doc.Title,
		doc.Description,
		doc.EvidenceType,
		doc.SourceType,
		doc.ExtractedText,
	}

	joined := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			joined = append(joined, p)
		}
	}

	hints := Hints(doc.SourceType, doc.ExtractedText)
	text := strings.TrimSpace(strings.Join(joined, "\n")) + "\n" + strings.Join(hints, " ")

	return truncate(text), hints
}

// Hints returns retrieval hint phrases derived from the evidence source type
// and extracted text. Cloud IAM-adjacent sources bias candidate retrieval
// toward access control language.
func Hints(sourceType, extractedText string) []string {
	var hints []string

	switch strings.ToLower(sourceType) {
	case "aws_s3", "aws":
		hints = append(hints, "iam policy permissions access control authorization")
	}

	if strings.Contains(strings.ToLower(extractedText), "s3:") {
		hints = append(hints, "iam policy s3 access control authorization")
	}

	return hints
}

// ContentHash returns the stable hash used to reuse classifications for
// identical payloads: hex SHA-256 of the trimmed text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// ExtractText derives stored evidence text from a raw text or raw JSON payload.
// JSON payloads are pretty-printed with sorted keys so identical structures
// hash identically regardless of key order. A JSON string value that itself
// contains JSON is parsed and normalized; one that does not is stored as-is.
func ExtractText(rawText *string, rawJSON json.RawMessage) string {
	if len(rawJSON) > 0 {
		var obj any
		if err := json.Unmarshal(rawJSON, &obj); err != nil {
			return truncate(strings.TrimSpace(string(rawJSON)))
		}

		if s, ok := obj.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" {
				return ""
			}
			var inner any
			if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
				return truncate(trimmed)
			}
			obj = inner
		}

		pretty, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return truncate(strings.TrimSpace(string(rawJSON)))
		}

		return truncate(strings.TrimSpace(string(pretty)))
	}

	if rawText != nil {
		return truncate(strings.TrimSpace(*rawText))
	}

	return ""
}

// ExtractFileText performs best-effort extraction for uploaded files.
// JSON files are parsed and normalized, text-like files are decoded as UTF-8
// with invalid sequences dropped, and anything else falls back to UTF-8 then
// Latin-1 decoding.
func ExtractFileText(filename string, data []byte) string {
	name := strings.ToLower(filename)
	mimeType := mime.TypeByExtension(filepath.Ext(name))

	if strings.HasSuffix(name, ".json") || mimeType == "application/json" {
		decoded := strings.ToValidUTF8(string(data), "")
		var parsed any
		if err := json.Unmarshal([]byte(decoded), &parsed); err == nil {
			raw, _ := json.Marshal(parsed)
			return ExtractText(nil, raw)
		}
	}

	if hasTextSuffix(name) || strings.HasPrefix(mimeType, "text/") {
		return truncate(strings.TrimSpace(strings.ToValidUTF8(string(data), "")))
	}

	var text string
	if utf8.Valid(data) {
		text = string(data)
	} else {
		text = decodeLatin1(data)
	}

	return truncate(strings.TrimSpace(text))
}

func hasTextSuffix(name string) bool {
	for _, suffix := range []string{".txt", ".md", ".log", ".csv"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func truncate(text string) string {
	if len(text) > MaxTextLen {
		return text[:MaxTextLen]
	}
	return text
}
