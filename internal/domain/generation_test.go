package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseOutput_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind OutputKind
		url  string
	}{
		{"plain string", `"https://cdn/a.webp"`, OutputURL, "https://cdn/a.webp"},
		{"list of strings", `["https://cdn/a.webp","https://cdn/b.webp"]`, OutputURLList, "https://cdn/a.webp"},
		{"single file", `{"url":"https://cdn/c.webp"}`, OutputFile, "https://cdn/c.webp"},
		{"list of files", `[{"url":"https://cdn/d.webp"}]`, OutputFileList, "https://cdn/d.webp"},
		{"string then file", `["https://cdn/e.webp",{"url":"https://cdn/f.webp"}]`, OutputURLList, "https://cdn/e.webp"},
		{"file then string", `[{"url":"https://cdn/g.webp"},"https://cdn/h.webp"]`, OutputFileList, "https://cdn/g.webp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseOutput(json.RawMessage(tt.raw))
			if out.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", out.Kind, tt.kind)
			}
			url, err := out.ImageURL()
			if err != nil {
				t.Fatalf("ImageURL: %v", err)
			}
			if url != tt.url {
				t.Errorf("url = %q, want %q", url, tt.url)
			}
		})
	}
}

func TestParseOutput_Unrecognized(t *testing.T) {
	for _, raw := range []string{
		`{"images":["https://cdn/a.webp"]}`,
		`null`,
		`[]`,
		`[1,2]`,
		`42`,
		`""`,
		`[{"path":"x"}]`,
	} {
		out := ParseOutput(json.RawMessage(raw))
		if out.Kind != OutputUnknown {
			t.Errorf("%s: kind = %s, want unknown", raw, out.Kind)
		}
		if _, err := out.ImageURL(); !errors.Is(err, ErrUnexpectedOutput) {
			t.Errorf("%s: expected ErrUnexpectedOutput, got %v", raw, err)
		}
	}
}
