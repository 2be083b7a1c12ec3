// Package export converts stored entries into line-delimited JSON training
// files. Each format is a fixed structural mapping from an entry; entries with
// blank content are skipped and counted rather than failing the export.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/loratk/internal/storage"
)

// Options tunes the record mapping. The zero value emits no system prompt,
// uses the default instruction template and does not chunk.
type Options struct {
	SystemPrompt     string `json:"system_prompt,omitempty"`
	InstructionStyle string `json:"instruction_style,omitempty"`
	ChunkSize        int    `json:"chunk_size,omitempty"`
	ChunkOverlap     int    `json:"chunk_overlap,omitempty"`
}

// Merge returns o with every non-zero field of override applied on top.
func (o Options) Merge(override Options) Options {
	if override.SystemPrompt != "" {
		o.SystemPrompt = override.SystemPrompt
	}
	if override.InstructionStyle != "" {
		o.InstructionStyle = override.InstructionStyle
	}
	if override.ChunkSize != 0 {
		o.ChunkSize = override.ChunkSize
	}
	if override.ChunkOverlap != 0 {
		o.ChunkOverlap = override.ChunkOverlap
	}
	return o
}

// Summary reports the outcome of an export.
type Summary struct {
	Format     Format   `json:"format"`
	Path       string   `json:"path,omitempty"`
	Entries    int      `json:"entries"`
	Records    int      `json:"records"`
	Skipped    int      `json:"skipped"`
	SkippedIDs []string `json:"skipped_ids,omitempty"`
}

type alpacaRecord struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	System      string `json:"system,omitempty"`
}

type turn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

type shareGPTRecord struct {
	Conversations []turn `json:"conversations"`
}

type completionRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatMLRecord struct {
	Messages []message `json:"messages"`
}

// records maps one entry to the values written for it.
func records(e storage.Entry, f Format, opts Options) []any {
	if f == FormatRaw {
		if e.Tags == nil {
			e.Tags = []string{}
		}
		return []any{e}
	}

	chunks := ChunkText(e.Content, opts.ChunkSize, opts.ChunkOverlap)
	out := make([]any, 0, len(chunks))
	for _, chunk := range chunks {
		switch f {
		case FormatAlpaca:
			tpl := TemplateFor(opts.InstructionStyle)
			out = append(out, alpacaRecord{
				Instruction: tpl.Instruction,
				Input:       tpl.InputPrefix + e.Title,
				Output:      chunk,
				System:      opts.SystemPrompt,
			})
		case FormatShareGPT:
			var conv []turn
			if opts.SystemPrompt != "" {
				conv = append(conv, turn{From: "system", Value: opts.SystemPrompt})
			}
			conv = append(conv,
				turn{From: "human", Value: "Tell me everything you know about: " + e.Title},
				turn{From: "gpt", Value: chunk},
			)
			out = append(out, shareGPTRecord{Conversations: conv})
		case FormatCompletion:
			out = append(out, completionRecord{Prompt: e.Title, Completion: chunk})
		case FormatChatML:
			var msgs []message
			if opts.SystemPrompt != "" {
				msgs = append(msgs, message{Role: "system", Content: opts.SystemPrompt})
			}
			msgs = append(msgs,
				message{Role: "user", Content: "Provide detailed information about: " + e.Title},
				message{Role: "assistant", Content: chunk},
			)
			out = append(out, chatMLRecord{Messages: msgs})
		}
	}
	return out
}

// Export writes entries to w as JSONL in entry order.
func Export(w io.Writer, entries []storage.Entry, format Format, opts Options) (Summary, error) {
	f, err := ParseFormat(string(format))
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Format: f, Entries: len(entries)}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			sum.Skipped++
			sum.SkippedIDs = append(sum.SkippedIDs, e.ID)
			continue
		}
		for _, rec := range records(e, f, opts) {
			if err := enc.Encode(rec); err != nil {
				return sum, fmt.Errorf("%w: encoding entry %s: %w", ErrWriteFailure, e.ID, err)
			}
			sum.Records++
		}
	}
	return sum, nil
}

// ExportFile writes the export to path atomically: the format is validated
// before anything touches disk, and on failure no file is left at path.
func ExportFile(path string, entries []storage.Entry, format Format, opts Options) (Summary, error) {
	f, err := ParseFormat(string(format))
	if err != nil {
		return Summary{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("%w: creating %s: %w", ErrWriteFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return Summary{}, fmt.Errorf("%w: creating temp file: %w", ErrWriteFailure, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	sum, err := Export(bw, entries, f, opts)
	if err != nil {
		return sum, err
	}
	if err := bw.Flush(); err != nil {
		return sum, fmt.Errorf("%w: flushing: %w", ErrWriteFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		return sum, fmt.Errorf("%w: syncing: %w", ErrWriteFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return sum, fmt.Errorf("%w: closing: %w", ErrWriteFailure, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return sum, fmt.Errorf("%w: chmod: %w", ErrWriteFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return sum, fmt.Errorf("%w: renaming into place: %w", ErrWriteFailure, err)
	}
	committed = true

	sum.Path = path
	return sum, nil
}
