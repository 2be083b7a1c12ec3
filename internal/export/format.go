package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for an unknown export format name.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrWriteFailure wraps I/O errors hit while writing an export.
var ErrWriteFailure = errors.New("export write failed")

// Format names a training-data schema.
type Format string

const (
	FormatAlpaca     Format = "alpaca"
	FormatShareGPT   Format = "sharegpt"
	FormatCompletion Format = "completion"
	FormatChatML     Format = "chatml"
	FormatRaw        Format = "raw"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatAlpaca, FormatShareGPT, FormatCompletion, FormatChatML, FormatRaw}

var aliases = map[string]Format{
	"jsonl":     FormatRaw,
	"raw_jsonl": FormatRaw,
}

// ParseFormat resolves a user-supplied format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if f, ok := aliases[n]; ok {
		return f, nil
	}
	for _, f := range Formats {
		if n == string(f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// DefaultFileName is <format>_YYYYMMDD_HHMMSS.jsonl.
func DefaultFileName(f Format, t time.Time) string {
	return fmt.Sprintf("%s_%s.jsonl", f, t.Format("20060102_150405"))
}

// Template is an Alpaca instruction preset.
type Template struct {
	Instruction string
	InputPrefix string
}

const DefaultTemplate = "default"

var templates = map[string]Template{
	"default": {
		Instruction: "Provide detailed information about the following topic based on your training data.",
		InputPrefix: "Topic: ",
	},
	"qa": {
		Instruction: "Answer the following question accurately and thoroughly.",
		InputPrefix: "Question: What do you know about ",
	},
	"explain": {
		Instruction: "Explain the following concept or information in detail.",
	},
	"summarize": {
		Instruction: "Provide a comprehensive summary of the following information.",
	},
}

// TemplateNames returns the known instruction styles, sorted.
func TemplateNames() []string {
	return []string{"default", "explain", "qa", "summarize"}
}

// TemplateFor returns the named template, or the default one when unknown.
func TemplateFor(style string) Template {
	if t, ok := templates[strings.ToLower(style)]; ok {
		return t
	}
	return templates[DefaultTemplate]
}

// ChunkText splits text into windows of size words, each starting overlap
// words before the previous one ended. size <= 0 disables chunking.
func ChunkText(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if size <= 0 || len(words) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
