package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score [id...]",
	Short: "Score entries for fine-tuning quality",
	Long: `Score entries for fine-tuning quality (0-100).

With IDs, those entries are scored and the scores stored. --all rescores the
whole library. --text scores a piece of text without storing anything. With no
arguments, entries waiting in the scoring queue are processed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		all, _ := cmd.Flags().GetBool("all")
		workers, _ := cmd.Flags().GetInt("workers")
		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		if cmd.Flags().Changed("text") {
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			}
			res := quality.Score(text)
			if asJSON {
				return printJSON(out, res)
			}
			printResult(out, "text", res)
			return nil
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		switch {
		case all:
			n, err := ingest.Rescore(cmd.Context(), lib.store, workers)
			if err != nil {
				return err
			}
			printSuccess("Rescored %d entries", n)
			return nil

		case len(args) > 0:
			results := make(map[string]quality.Result, len(args))
			for _, id := range args {
				e, err := lib.store.GetEntry(id)
				if err != nil {
					return fmt.Errorf("entry %s: %w", id, err)
				}
				res := quality.Score(e.Content)
				if err := lib.store.SetQualityScore(id, res.Overall); err != nil {
					return fmt.Errorf("storing score for %s: %w", id, err)
				}
				if asJSON {
					results[id] = res
					continue
				}
				printResult(out, shortID(id)+" "+truncate(e.Title, 40), res)
			}
			if asJSON {
				return printJSON(out, results)
			}
			return nil

		default:
			w := ingest.NewWorker(lib.store, 0)
			n := 0
			for {
				processed, err := w.RunOnce(cmd.Context())
				if err != nil {
					printWarning("scoring job failed: %v", err)
				}
				if !processed {
					break
				}
				n++
			}
			if n == 0 {
				printStatus("Queue", "nothing to score")
				return nil
			}
			printSuccess("Processed %d scoring jobs", n)
			return nil
		}
	},
}

func printResult(w io.Writer, label string, r quality.Result) {
	fmt.Fprintf(w, "%s  %s %s\n",
		colorize(colorBold, label),
		colorize(gradeColor(r.Grade), fmt.Sprintf("%d/100", r.Overall)),
		r.Grade,
	)
	fmt.Fprintf(w, "  length %d  readability %d  diversity %d  content %d  (%d words)\n",
		r.Details.Length, r.Details.Readability, r.Details.Diversity, r.Details.Content, r.WordCount)
	if len(r.Issues) > 0 {
		fmt.Fprintf(w, "  issues: %s\n", strings.Join(r.Issues, "; "))
	}
}

func init() {
	scoreCmd.Flags().String("text", "", "score this text instead of stored entries (- for stdin)")
	scoreCmd.Flags().Bool("all", false, "rescore every entry")
	scoreCmd.Flags().Int("workers", 4, "parallel scorers for --all")
	scoreCmd.Flags().Bool("json", false, "print JSON")
}

// --- dedup ---

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Find duplicate entries",
	Long: `Find duplicate entries by comparing every pair in the library.

--title lists entries with a similar title instead. --remove deletes the
newer entry of each duplicate pair.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		limit, _ := cmd.Flags().GetInt("limit")
		remove, _ := cmd.Flags().GetBool("remove")
		out := cmd.OutOrStdout()

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		entries, err := lib.store.ListEntries(storage.EntryFilter{})
		if err != nil {
			return err
		}

		if title != "" {
			matches := dedup.SimilarTitles(title, entries, threshold, limit)
			if len(matches) == 0 {
				fmt.Fprintln(out, "No similar titles.")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "%s  %.2f  %s\n", colorize(colorCyan, shortID(m.ID)), m.TitleSimilarity, m.Title)
			}
			return nil
		}

		// Oldest first, so the second entry of a pair is the newer one.
		slices.Reverse(entries)
		pairs := lib.checker.Scan(entries)
		if len(pairs) == 0 {
			printSuccess("No duplicates among %d entries", len(entries))
			return nil
		}

		seen := make(map[string]bool)
		var newer []string
		for _, p := range pairs {
			fmt.Fprintf(out, "%s %s  ~  %s %s  (%s, %.2f)\n",
				colorize(colorCyan, shortID(p.A.ID)), truncate(p.A.Title, 30),
				colorize(colorCyan, shortID(p.B.ID)), truncate(p.B.Title, 30),
				p.Match.Reason, p.Match.Similarity(),
			)
			if !seen[p.B.ID] {
				seen[p.B.ID] = true
				newer = append(newer, p.B.ID)
			}
		}

		if !remove {
			printWarning("%d duplicate pairs; run with --remove to delete the newer entries", len(pairs))
			return nil
		}
		n, err := lib.store.DeleteEntries(newer)
		if err != nil {
			return err
		}
		printSuccess("Removed %d duplicate entries", n)
		return nil
	},
}

func init() {
	dedupCmd.Flags().String("title", "", "list entries with a title similar to this")
	dedupCmd.Flags().Float64("threshold", 0.5, "minimum title similarity for --title")
	dedupCmd.Flags().Int("limit", 5, "maximum matches for --title")
	dedupCmd.Flags().Bool("remove", false, "delete the newer entry of each duplicate pair")
}
