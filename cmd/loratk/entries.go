package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/storage"
)

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readContent(cmd *cobra.Command, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a text entry to the library",
	Long: `Add a text entry to the library. The entry is checked against the
library for duplicates and queued for scoring.

Examples:
  loratk add --title "Replay review" --content "Moderators confirm..."
  loratk add --title "Notes" --file ./notes.md --tags notes,draft
  pbpaste | loratk add --title "Clipboard" --file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		file, _ := cmd.Flags().GetString("file")
		url, _ := cmd.Flags().GetString("url")
		sourceType, _ := cmd.Flags().GetString("source-type")
		category, _ := cmd.Flags().GetString("category")
		tags, _ := cmd.Flags().GetString("tags")

		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("--title is required")
		}
		if content == "" && file == "" {
			return fmt.Errorf("one of --content or --file is required")
		}
		if file != "" {
			text, err := readContent(cmd, file)
			if err != nil {
				return err
			}
			content = text
			if sourceType == "" && file != "-" {
				sourceType = string(storage.SourceFile)
			}
		}
		if sourceType == "" && url != "" {
			sourceType = string(storage.SourceWeb)
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		res, err := lib.collector().Add(cmd.Context(), ingest.Item{
			Title:      title,
			Content:    content,
			SourceType: sourceType,
			SourceURL:  url,
			Tags:       splitList(tags),
			Category:   category,
		})
		if err != nil {
			return err
		}

		if res.Duplicate != nil {
			printWarning("Similar to %s %q (%s)", shortID(res.Duplicate.ID), res.Duplicate.Title, res.Duplicate.Reason)
		}
		printSuccess("Added entry %s (%d words)", shortID(res.Entry.ID), res.Entry.WordCount)
		fmt.Fprintln(cmd.OutOrStdout(), res.Entry.ID)
		return nil
	},
}

func init() {
	addCmd.Flags().String("title", "", "entry title")
	addCmd.Flags().String("content", "", "entry text")
	addCmd.Flags().String("file", "", "read the text from a file (- for stdin)")
	addCmd.Flags().String("url", "", "source URL")
	addCmd.Flags().String("source-type", "", "web, youtube, paste, ocr, file or crawl")
	addCmd.Flags().String("category", "", "category (default general)")
	addCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import entries from a JSONL file",
	Long: `Import entries from a JSONL file with one object per line:

  {"title": "...", "content": "...", "source_type": "web", "tags": ["a"]}

Raw exports can be imported back. Duplicates are skipped and counted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		items, err := ingest.ReadItems(f)
		if err != nil {
			return err
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		col := lib.collector()
		var added, dupes, failed int
		for i, it := range items {
			_, err := col.Add(cmd.Context(), it)
			switch {
			case errors.Is(err, ingest.ErrDuplicate):
				dupes++
			case err != nil:
				failed++
				printError("item %d (%q): %v", i+1, truncate(it.Title, 40), err)
			default:
				added++
			}
		}

		printSuccess("Imported %d of %d entries", added, len(items))
		if dupes > 0 {
			printStatus("Duplicates skipped", "%d", dupes)
		}
		if failed > 0 {
			return fmt.Errorf("%d entries failed to import", failed)
		}
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := entryFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		f.Limit, _ = cmd.Flags().GetInt("limit")
		f.Offset, _ = cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		entries, err := lib.store.ListEntries(f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			if entries == nil {
				entries = []storage.Entry{}
			}
			return printJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No entries found.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s  %-50s  %5d words  %s\n",
				colorize(colorCyan, shortID(e.ID)),
				scoreLabel(e.QualityScore),
				truncate(e.Title, 50),
				e.WordCount,
				colorize(colorDim, e.Category),
			)
		}
		return nil
	},
}

// entryFilterFromFlags reads the shared --category/--source-type/--search/--min-score flags.
func entryFilterFromFlags(cmd *cobra.Command) (storage.EntryFilter, error) {
	var f storage.EntryFilter
	f.Category, _ = cmd.Flags().GetString("category")
	f.Search, _ = cmd.Flags().GetString("search")
	f.MinScore, _ = cmd.Flags().GetInt("min-score")
	if f.MinScore < 0 || f.MinScore > 100 {
		return f, fmt.Errorf("--min-score must be between 0 and 100")
	}
	if st, _ := cmd.Flags().GetString("source-type"); st != "" {
		parsed, err := storage.ParseSourceType(st)
		if err != nil {
			return f, err
		}
		f.SourceType = parsed
	}
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("category", "", "only entries in this category")
	cmd.Flags().String("source-type", "", "only entries of this source type")
	cmd.Flags().String("search", "", "substring match on title or content")
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().Int("min-score", 0, "only entries scored at least this")
	listCmd.Flags().Int("limit", 20, "maximum number of entries")
	listCmd.Flags().Int("offset", 0, "skip this many entries")
	listCmd.Flags().Bool("json", false, "print JSON")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		e, err := lib.store.GetEntry(args[0])
		if err != nil {
			return fmt.Errorf("entry %s: %w", args[0], err)
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

// --- edit ---

type editableEntry struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Content  string   `json:"content"`
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit an entry (opens $EDITOR when no flags are given)",
	Long: `Edit an entry. Flags change single fields; without flags the entry is
opened as JSON in $EDITOR. Changing the content clears the quality score
until the entry is scored again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		var u storage.EntryUpdate
		fl := cmd.Flags()
		if fl.Changed("title") {
			v, _ := fl.GetString("title")
			u.Title = &v
		}
		if fl.Changed("content") {
			v, _ := fl.GetString("content")
			u.Content = &v
		}
		if fl.Changed("category") {
			v, _ := fl.GetString("category")
			u.Category = &v
		}
		if fl.Changed("tags") {
			v, _ := fl.GetString("tags")
			tags := splitList(v)
			u.Tags = &tags
		}

		if u == (storage.EntryUpdate{}) {
			current, err := lib.store.GetEntry(args[0])
			if err != nil {
				return fmt.Errorf("entry %s: %w", args[0], err)
			}
			u, err = editInEditor(current)
			if err != nil {
				return err
			}
		}

		e, err := lib.store.UpdateEntry(args[0], u)
		if err != nil {
			return err
		}
		printSuccess("Updated entry %s", shortID(e.ID))
		return nil
	},
}

func editInEditor(e storage.Entry) (storage.EntryUpdate, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	data, err := json.MarshalIndent(editableEntry{
		Title:    e.Title,
		Category: e.Category,
		Tags:     e.Tags,
		Content:  e.Content,
	}, "", "  ")
	if err != nil {
		return storage.EntryUpdate{}, err
	}

	tmpFile, err := os.CreateTemp("", "loratk-entry-*.json")
	if err != nil {
		return storage.EntryUpdate{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return storage.EntryUpdate{}, err
	}
	tmpFile.Close()

	editorCmd := exec.Command(editor, tmpPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return storage.EntryUpdate{}, fmt.Errorf("editor exited with error: %w", err)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return storage.EntryUpdate{}, err
	}
	var v editableEntry
	if err := json.Unmarshal(edited, &v); err != nil {
		return storage.EntryUpdate{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var u storage.EntryUpdate
	if v.Title != e.Title {
		u.Title = &v.Title
	}
	if v.Category != e.Category {
		u.Category = &v.Category
	}
	if v.Content != e.Content {
		u.Content = &v.Content
	}
	if strings.Join(v.Tags, ",") != strings.Join(e.Tags, ",") {
		u.Tags = &v.Tags
	}
	return u, nil
}

func init() {
	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("content", "", "new content")
	editCmd.Flags().String("category", "", "new category")
	editCmd.Flags().String("tags", "", "replace tags (comma-separated)")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		n, err := lib.store.DeleteEntries(args)
		if err != nil {
			return err
		}
		if n < len(args) {
			printWarning("%d of %d entries were not found", len(args)-n, len(args))
		}
		printSuccess("Deleted %d entries", n)
		return nil
	},
}

// --- categories / tags ---

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List categories in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		cats, err := lib.store.Categories()
		if err != nil {
			return err
		}
		for _, c := range cats {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		tags, err := lib.store.Tags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}
