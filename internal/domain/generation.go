package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedOutput is returned when a prediction output has a shape that
// cannot be turned into an image URL.
var ErrUnexpectedOutput = errors.New("unexpected output format")

// GenerationRequest is a single prediction call against the image model.
type GenerationRequest struct {
	Model  string
	Prompt string
	Input  map[string]any
}

// Result is a normalized generation outcome.
type Result struct {
	ImageURL       string
	EnhancedPrompt string
	PredictionID   string
}

// Predictor runs a prediction to completion and returns its raw output.
type Predictor interface {
	Predict(ctx context.Context, req GenerationRequest) (Output, error)
}

// OutputKind tags the shape of a prediction output.
type OutputKind int

const (
	OutputUnknown  OutputKind = iota
	OutputURL                 // "https://..."
	OutputURLList             // ["https://...", ...]
	OutputFile                // {"url": "https://..."}
	OutputFileList            // [{"url": "https://..."}, ...]
)

func (k OutputKind) String() string {
	switch k {
	case OutputURL:
		return "url"
	case OutputURLList:
		return "url_list"
	case OutputFile:
		return "file"
	case OutputFileList:
		return "file_list"
	default:
		return "unknown"
	}
}

// Output is the tagged union over the shapes an image model may return.
type Output struct {
	Kind         OutputKind
	URLs         []string
	Raw          json.RawMessage
	PredictionID string // set by the predictor when it has one
}

type fileOutput struct {
	URL string `json:"url"`
}

// ParseOutput classifies a raw JSON prediction output. A list is classified by
// its first element. It never fails; unrecognized shapes become OutputUnknown.
func ParseOutput(raw json.RawMessage) Output {
	out := Output{Kind: OutputUnknown, Raw: raw}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s != "" {
			out.Kind = OutputURL
			out.URLs = []string{s}
		}
		return out
	}

	var f fileOutput
	if isObject(raw) {
		if err := json.Unmarshal(raw, &f); err == nil && f.URL != "" {
			out.Kind = OutputFile
			out.URLs = []string{f.URL}
		}
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return out
	}

	var first string
	if err := json.Unmarshal(items[0], &first); err == nil {
		if first == "" {
			return out
		}
		urls := make([]string, 0, len(items))
		for _, item := range items {
			var u string
			if err := json.Unmarshal(item, &u); err != nil || u == "" {
				break
			}
			urls = append(urls, u)
		}
		out.Kind = OutputURLList
		out.URLs = urls
		return out
	}

	if !isObject(items[0]) {
		return out
	}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		var f fileOutput
		if err := json.Unmarshal(item, &f); err != nil || f.URL == "" {
			break
		}
		urls = append(urls, f.URL)
	}
	if len(urls) > 0 {
		out.Kind = OutputFileList
		out.URLs = urls
	}
	return out
}

// ImageURL returns the first image URL, or ErrUnexpectedOutput for shapes
// that carry none.
func (o Output) ImageURL() (string, error) {
	if o.Kind == OutputUnknown || len(o.URLs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedOutput, truncate(string(o.Raw), 200))
	}
	return o.URLs[0], nil
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
