package preprocess_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/auditstack/attest/internal/preprocess"
)

func TestCanonicalJoinsNonEmptyFields(t *testing.T) {
	doc := preprocess.Document{
		Title:         "Access review",
		Description:   "Quarterly review",
		SourceType:    "manual",
		ExtractedText: "reviewed 12 accounts",
	}

	text, hints := preprocess.Canonical(doc)

	want := "Access review\nQuarterly review\nmanual\nreviewed 12 accounts\n"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if len(hints) != 0 {
		t.Errorf("hints = %v, want none", hints)
	}
}

func TestCanonicalHints(t *testing.T) {
	tests := []struct {
		name      string
		doc       preprocess.Document
		wantHints []string
	}{
		{
			name: "aws_s3 source type",
			doc:  preprocess.Document{Title: "Bucket policy", SourceType: "aws_s3"},
			wantHints: []string{
				"iam policy permissions access control authorization",
			},
		},
		{
			name: "aws source type case insensitive",
			doc:  preprocess.Document{Title: "Bucket policy", SourceType: "AWS"},
			wantHints: []string{
				"iam policy permissions access control authorization",
			},
		},
		{
			name: "s3 action prefix in text",
			doc: preprocess.Document{
				Title:         "Policy",
				ExtractedText: `{"Action": ["S3:GetObject"]}`,
			},
			wantHints: []string{
				"iam policy s3 access control authorization",
			},
		},
		{
			name: "both hints",
			doc: preprocess.Document{
				Title:         "Policy",
				SourceType:    "aws_s3",
				ExtractedText: `"s3:PutObject"`,
			},
			wantHints: []string{
				"iam policy permissions access control authorization",
				"iam policy s3 access control authorization",
			},
		},
		{
			name:      "unrelated source",
			doc:       preprocess.Document{Title: "Policy", SourceType: "jira"},
			wantHints: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, hints := preprocess.Canonical(tt.doc)

			if len(hints) != len(tt.wantHints) {
				t.Fatalf("hints = %v, want %v", hints, tt.wantHints)
			}
			for i, h := range hints {
				if h != tt.wantHints[i] {
					t.Errorf("hints[%d] = %q, want %q", i, h, tt.wantHints[i])
				}
			}
			if !strings.HasSuffix(text, "\n"+strings.Join(tt.wantHints, " ")) {
				t.Errorf("text %q does not end with hint suffix", text)
			}
		})
	}
}

func TestCanonicalCapsLength(t *testing.T) {
	doc := preprocess.Document{
		Title:         "big",
		ExtractedText: strings.Repeat("a", preprocess.MaxTextLen+500),
	}

	text, _ := preprocess.Canonical(doc)

	if len(text) != preprocess.MaxTextLen {
		t.Errorf("len(text) = %d, want %d", len(text), preprocess.MaxTextLen)
	}
}

func TestContentHash(t *testing.T) {
	// sha256 of "hello"
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	if got := preprocess.ContentHash("hello"); got != want {
		t.Errorf("ContentHash(hello) = %q, want %q", got, want)
	}
	if got := preprocess.ContentHash("  hello \n"); got != want {
		t.Errorf("ContentHash trims whitespace: got %q, want %q", got, want)
	}
	if preprocess.ContentHash("hello") != preprocess.ContentHash("hello") {
		t.Error("ContentHash is not deterministic")
	}
}

func TestExtractTextJSONKeyOrder(t *testing.T) {
	a := preprocess.ExtractText(nil, json.RawMessage(`{"b": 1, "a": 2}`))
	b := preprocess.ExtractText(nil, json.RawMessage(`{"a": 2, "b": 1}`))

	if a != b {
		t.Errorf("key order changed output: %q vs %q", a, b)
	}
	if !strings.Contains(a, "  \"a\": 2") {
		t.Errorf("output not pretty-printed: %q", a)
	}
}

func TestExtractTextStringPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "json string containing json is normalized",
			raw:  `"{\"b\": 1, \"a\": 2}"`,
			want: "{\n  \"a\": 2,\n  \"b\": 1\n}",
		},
		{
			name: "json string without json stored as-is",
			raw:  `"just some notes"`,
			want: "just some notes",
		},
		{
			name: "whitespace-only string",
			raw:  `"   "`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocess.ExtractText(nil, json.RawMessage(tt.raw))
			if got != tt.want {
				t.Errorf("ExtractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTextRawText(t *testing.T) {
	raw := "  some log lines \n"
	if got := preprocess.ExtractText(&raw, nil); got != "some log lines" {
		t.Errorf("ExtractText = %q, want trimmed raw text", got)
	}

	if got := preprocess.ExtractText(nil, nil); got != "" {
		t.Errorf("ExtractText with no input = %q, want empty", got)
	}
}

func TestExtractFileText(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
	}{
		{
			name:     "json file normalized",
			filename: "policy.JSON",
			data:     []byte(`{"z": true, "a": false}`),
			want:     "{\n  \"a\": false,\n  \"z\": true\n}",
		},
		{
			name:     "text file trimmed",
			filename: "notes.txt",
			data:     []byte("  line one\nline two  "),
			want:     "line one\nline two",
		},
		{
			name:     "invalid json file falls back to text decode",
			filename: "broken.json",
			data:     []byte("{not json"),
			want:     "{not json",
		},
		{
			name:     "binary falls back to latin-1",
			filename: "dump.bin",
			data:     []byte{0x48, 0x69, 0xFF},
			want:     "Hiÿ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocess.ExtractFileText(tt.filename, tt.data)
			if got != tt.want {
				t.Errorf("ExtractFileText = %q, want %q", got, tt.want)
			}
		})
	}
}
