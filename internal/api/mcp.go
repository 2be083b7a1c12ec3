package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store         *storage.Store
	Collector     *ingest.Collector
	Checker       *dedup.Checker
	ExportsDir    string
	ExportOptions export.Options
	DefaultFormat export.Format
	MinScore      int
}

// NewMCPServer creates an MCP server with all loratk tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.Checker == nil {
		deps.Checker = dedup.NewChecker(0, 0)
	}
	if deps.Collector == nil {
		deps.Collector = ingest.NewCollector(deps.Store, deps.Checker, true)
	}
	if deps.DefaultFormat == "" {
		deps.DefaultFormat = export.FormatAlpaca
	}

	s := server.NewMCPServer(
		"loratk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("loratk: a local library of text entries that can be scored, deduplicated and exported as fine-tuning datasets."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_entry",
			mcp.WithDescription("Save a text entry to the library. It is scored in the background."),
			mcp.WithString("title", mcp.Description("Short label for the entry"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The text body"), mcp.Required()),
			mcp.WithString("source_type", mcp.Description("One of web, youtube, paste, ocr, file, crawl (default paste)")),
			mcp.WithString("source_url", mcp.Description("Where the text came from")),
			mcp.WithString("category", mcp.Description("Category (default general)")),
			mcp.WithArray("tags", mcp.Description("Optional tags")),
		),
		mcpAddEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("score_text",
			mcp.WithDescription("Rate a text for use as fine-tuning data (0-100) with a per-component breakdown."),
			mcp.WithString("content", mcp.Description("Text to score"), mcp.Required()),
		),
		mcpScoreText(),
	)

	s.AddTool(
		mcp.NewTool("check_duplicate",
			mcp.WithDescription("Check whether a title/content pair duplicates an entry already in the library."),
			mcp.WithString("title", mcp.Description("Candidate title")),
			mcp.WithString("content", mcp.Description("Candidate content")),
		),
		mcpCheckDuplicate(deps),
	)

	s.AddTool(
		mcp.NewTool("export_dataset",
			mcp.WithDescription("Export library entries as a JSONL training dataset and return the summary."),
			mcp.WithString("format", mcp.Description("alpaca, sharegpt, completion, chatml or raw")),
			mcp.WithArray("ids", mcp.Description("Entry IDs to export, in order (default: whole library)")),
			mcp.WithString("category", mcp.Description("Only export this category")),
			mcp.WithNumber("min_score", mcp.Description("Skip entries scored below this (default from export.min_score)")),
			mcp.WithString("path", mcp.Description("Output file (default: exports dir with a timestamped name)")),
		),
		mcpExportDataset(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"library://stats",
			"Library Stats",
			mcp.WithResourceDescription("Entry counts, word totals and quality grade distribution as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAddEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		res, err := deps.Collector.Add(ctx, ingest.Item{
			Title:      title,
			Content:    content,
			SourceType: req.GetString("source_type", ""),
			SourceURL:  req.GetString("source_url", ""),
			Category:   req.GetString("category", ""),
			Tags:       req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		msg := fmt.Sprintf("Stored entry %s (%d words)", res.Entry.ID, res.Entry.WordCount)
		if res.Duplicate != nil {
			msg += fmt.Sprintf("; note: looks like %s (%s)", res.Duplicate.ID, res.Duplicate.Reason)
		}
		return mcpText(msg), nil
	}
}

func mcpScoreText() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		b, err := json.Marshal(quality.Score(content))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCheckDuplicate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := req.GetString("title", "")
		content := req.GetString("content", "")
		if strings.TrimSpace(title) == "" && strings.TrimSpace(content) == "" {
			return mcpError("title or content is required"), nil
		}

		res, err := checkDuplicate(deps.Store, deps.Checker, title, content)
		if err != nil {
			return mcpError(fmt.Sprintf("duplicate check failed: %v", err)), nil
		}
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExportDataset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format := export.Format(req.GetString("format", string(deps.DefaultFormat)))

		minScore := deps.MinScore
		if _, ok := req.GetArguments()["min_score"]; ok {
			minScore = req.GetInt("min_score", deps.MinScore)
		}
		if minScore < 0 || minScore > 100 {
			return mcpError("min_score must be between 0 and 100"), nil
		}

		sum, err := export.Run(deps.Store, export.Request{
			Format:   format,
			IDs:      req.GetStringSlice("ids", nil),
			Filter:   storage.EntryFilter{Category: req.GetString("category", "")},
			MinScore: minScore,
			Path:     req.GetString("path", ""),
			Dir:      deps.ExportsDir,
			Options:  deps.ExportOptions,
		}, time.Now())
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return mcpError(fmt.Sprintf("%v (supported: %s)", err, formatList())), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}

		b, err := json.Marshal(sum)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func formatList() string {
	names := make([]string, len(export.Formats))
	for i, f := range export.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := CollectStats(deps.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}

		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
