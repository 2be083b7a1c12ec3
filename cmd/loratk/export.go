package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/loratk/internal/api"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/report"
)

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export entries as a JSONL training dataset",
	Long: `Export entries as a JSONL training dataset.

Formats: alpaca, sharegpt, completion, chatml, raw (see "loratk formats").
Without --output the file is written to the exports directory as
<format>_YYYYMMDD_HHMMSS.jsonl.

Examples:
  loratk export --format sharegpt --min-score 60
  loratk export --format alpaca --style qa --category security -o train.jsonl
  loratk export --format completion --chunk-size 400 --chunk-overlap 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fl := cmd.Flags()
		output, _ := fl.GetString("output")
		ids, _ := fl.GetString("ids")

		filter, err := entryFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		format := export.Format(lib.cfg.Export.DefaultFormat)
		if fl.Changed("format") {
			v, _ := fl.GetString("format")
			format = export.Format(v)
		}
		minScore := lib.cfg.Export.MinScore
		if fl.Changed("min-score") {
			minScore = filter.MinScore
		}
		filter.MinScore = 0

		opts := lib.cfg.ExportOptions()
		if fl.Changed("system-prompt") {
			opts.SystemPrompt, _ = fl.GetString("system-prompt")
		}
		if fl.Changed("style") {
			opts.InstructionStyle, _ = fl.GetString("style")
		}
		if fl.Changed("chunk-size") {
			opts.ChunkSize, _ = fl.GetInt("chunk-size")
		}
		if fl.Changed("chunk-overlap") {
			opts.ChunkOverlap, _ = fl.GetInt("chunk-overlap")
		}

		sum, err := export.Run(lib.store, export.Request{
			Format:   format,
			IDs:      splitList(ids),
			Filter:   filter,
			MinScore: minScore,
			Path:     output,
			Dir:      lib.cfg.ExportsPath(),
			Options:  opts,
		}, time.Now())
		if err != nil {
			return err
		}

		printSuccess("Exported %d records from %d entries (%s)", sum.Records, sum.Entries, sum.Format)
		if sum.Skipped > 0 {
			printWarning("Skipped %d entries with empty content", sum.Skipped)
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum.Path)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("format", "", "alpaca, sharegpt, completion, chatml or raw (default from config)")
	f.StringP("output", "o", "", "output file (default: exports dir)")
	f.String("ids", "", "comma-separated entry IDs to export, in this order")
	addFilterFlags(exportCmd)
	f.Int("min-score", 0, "skip entries scored below this (unscored entries are skipped too)")
	f.String("system-prompt", "", "system prompt for chat formats")
	f.String("style", "", "alpaca instruction style: default, qa, explain, summarize")
	f.Int("chunk-size", 0, "split content into chunks of this many words (0 disables)")
	f.Int("chunk-overlap", 0, "words shared between consecutive chunks")
}

// --- formats ---

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List export formats and alpaca instruction styles",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		descriptions := map[export.Format]string{
			export.FormatAlpaca:     "instruction / input / output, optional system",
			export.FormatShareGPT:   "conversations with system, human and gpt turns",
			export.FormatCompletion: "prompt / completion pairs",
			export.FormatChatML:     "messages with system, user and assistant roles",
			export.FormatRaw:        "the stored entries, one per line",
		}
		fmt.Fprintln(out, colorize(colorBold, "Formats"))
		for _, f := range export.Formats {
			fmt.Fprintf(out, "  %-12s %s\n", f, descriptions[f])
		}
		fmt.Fprintln(out, colorize(colorBold, "Alpaca styles"))
		for _, name := range export.TemplateNames() {
			fmt.Fprintf(out, "  %-12s %s\n", name, export.TemplateFor(name).Instruction)
		}
		return nil
	},
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write an Excel quality report of the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		filter, err := entryFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		entries, err := lib.store.ListEntries(filter)
		if err != nil {
			return err
		}
		slices.Reverse(entries)

		buf, err := report.Generate(entries)
		if err != nil {
			return fmt.Errorf("building report: %w", err)
		}

		if output == "" {
			output = filepath.Join(lib.cfg.ExportsPath(), "report_"+time.Now().Format("20060102_150405")+".xlsx")
		}
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
		if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}

		printSuccess("Report of %d entries written", len(entries))
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringP("output", "o", "", "output .xlsx file (default: exports dir)")
	addFilterFlags(reportCmd)
	reportCmd.Flags().Int("min-score", 0, "only entries scored at least this")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		hist, err := lib.store.ListExportHistory(limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hist) == 0 {
			fmt.Fprintln(out, "No exports yet.")
			return nil
		}
		for _, h := range hist {
			fmt.Fprintf(out, "%s  %-10s %5d records  %5d entries  %s\n",
				h.CreatedAt.Local().Format("2006-01-02 15:04"),
				h.Format, h.RecordCount, h.EntryCount, h.Path)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of exports")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		st, err := api.CollectStats(lib.store)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStats(st)
		return nil
	},
}

func printStats(st api.LibraryStats) {
	printStatus("Entries", "%d (%d scored)", st.TotalEntries, st.Scored)
	printStatus("Words", "%d", st.TotalWords)
	for _, t := range sortedKeys(st.ByType) {
		printStatus("  "+t, "%d", st.ByType[t])
	}
	printStatus("Average score", "%d", st.Quality.AvgScore)
	for _, g := range quality.Grades {
		printStatus("  "+string(g), "%d", st.Quality.ByGrade[g])
	}
	printStatus("Exports", "%d", st.TotalExports)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	statsCmd.Flags().Bool("json", false, "print JSON")
}
