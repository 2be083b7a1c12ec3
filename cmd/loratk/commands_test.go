package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/loratk/internal/api"
	"github.com/kalambet/loratk/internal/config"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

func testConfig(dir string) config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 4100},
		Storage: config.StorageConfig{DataDir: dir},
		Log:     config.LogConfig{Level: "error"},
		Export: config.ExportConfig{
			DefaultFormat:    "alpaca",
			SystemPrompt:     config.DefaultSystemPrompt,
			InstructionStyle: export.DefaultTemplate,
			ChunkOverlap:     50,
		},
		Dedup:  config.DedupConfig{TitleThreshold: 0.8, ContentThreshold: 0.85},
		Ingest: config.IngestConfig{SkipDuplicates: true},
		API:    config.APIConfig{Token: "test-token"},
	}
}

// setupCLI points every command at a fresh library in a temp dir.
func setupCLI(t *testing.T, mutate ...func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)
	for _, m := range mutate {
		m(&cfg)
	}

	oldLoad, oldColor := loadConfig, noColor
	loadConfig = func() (config.Config, error) { return cfg, nil }
	noColor = true
	t.Cleanup(func() {
		loadConfig = oldLoad
		noColor = oldColor
	})
	return dir
}

// resetFlags clears values left over from a previous Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	noColor = true

	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("loratk %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func addEntry(t *testing.T, title, content string, extra ...string) string {
	t.Helper()
	args := append([]string{"add", "--title", title, "--content", content}, extra...)
	return strings.TrimSpace(mustRun(t, args...))
}

func listJSON(t *testing.T, args ...string) []storage.Entry {
	t.Helper()
	out := mustRun(t, append([]string{"list", "--json"}, args...)...)
	var entries []storage.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decoding list output %q: %v", out, err)
	}
	return entries
}

func TestAddListShow(t *testing.T) {
	setupCLI(t)

	id := addEntry(t, "Anti-cheat basics", "Server side checks catch impossible movement.", "--tags", "security, games", "--category", "notes")
	if id == "" {
		t.Fatal("add printed no id")
	}

	out := mustRun(t, "list")
	if !strings.Contains(out, shortID(id)) || !strings.Contains(out, "Anti-cheat basics") {
		t.Errorf("list output = %q", out)
	}

	out = mustRun(t, "show", id)
	var e storage.Entry
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatalf("decoding show output: %v", err)
	}
	if e.Title != "Anti-cheat basics" || e.Category != "notes" {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Tags) != 2 || e.Tags[0] != "security" || e.Tags[1] != "games" {
		t.Errorf("tags = %v, want [security games]", e.Tags)
	}
	if e.SourceType != storage.SourcePaste {
		t.Errorf("source_type = %q, want paste", e.SourceType)
	}
}

func TestAddCommand_MissingArgs(t *testing.T) {
	setupCLI(t)

	for _, args := range [][]string{
		{"add"},
		{"add", "--title", "no body"},
	} {
		_, err := runCmd(t, args...)
		if err == nil {
			t.Fatalf("%v: expected error", args)
		}
		if !strings.Contains(err.Error(), "required") {
			t.Errorf("error = %q, want it to mention 'required'", err.Error())
		}
	}
}

func TestAddCommand_FromFile(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("Notes kept in a markdown file."), 0o644); err != nil {
		t.Fatal(err)
	}

	id := strings.TrimSpace(mustRun(t, "add", "--title", "Notes", "--file", path))
	out := mustRun(t, "show", id)
	if !strings.Contains(out, `"source_type": "file"`) || !strings.Contains(out, "markdown file") {
		t.Errorf("show output = %q", out)
	}
}

func TestAddCommand_Duplicate(t *testing.T) {
	setupCLI(t)
	addEntry(t, "Speed hacks", "modifying the game clock")

	_, err := runCmd(t, "add", "--title", "speed  HACKS", "--content", "something else entirely")
	if !errors.Is(err, ingest.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if n := len(listJSON(t)); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestImportCommand(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "items.jsonl")
	data := `{"title":"One","content":"first body","source_type":"web","source_url":"https://example.com/1"}

{"title":"Two","content":"second body","tags":["x"]}
{"title":"one","content":"first body again"}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	mustRun(t, "import", path)

	entries := listJSON(t)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if web := listJSON(t, "--source-type", "web"); len(web) != 1 || web[0].Title != "One" {
		t.Errorf("web entries = %+v", web)
	}
}

func TestImportCommand_BadFile(t *testing.T) {
	dir := setupCLI(t)
	path := filepath.Join(dir, "bad.jsonl")
	os.WriteFile(path, []byte("{not json}\n"), 0o644)

	_, err := runCmd(t, "import", path)
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("err = %v, want a line 1 error", err)
	}
}

func TestScoreCommand_Queue(t *testing.T) {
	setupCLI(t)
	id := addEntry(t, "Spam", "spam spam spam spam")

	mustRun(t, "score")

	out := mustRun(t, "show", id)
	var e storage.Entry
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatal(err)
	}
	if e.QualityScore == nil || *e.QualityScore != 48 {
		t.Errorf("quality_score = %v, want 48", e.QualityScore)
	}
}

func TestScoreCommand_Text(t *testing.T) {
	setupCLI(t)

	out := mustRun(t, "score", "--text", "spam spam spam spam", "--json")
	var res quality.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if res.Overall != 48 || res.Grade != quality.GradeOkay {
		t.Errorf("result = %+v", res)
	}

	out = mustRun(t, "score", "--text", "")
	if !strings.Contains(out, "junk") {
		t.Errorf("empty text output = %q, want junk grade", out)
	}
}

func TestScoreCommand_IDsAndAll(t *testing.T) {
	setupCLI(t)
	a := addEntry(t, "A", "spam spam spam spam")
	addEntry(t, "B", "one two three")

	out := mustRun(t, "score", a, "--json")
	var results map[string]quality.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if results[a].Overall != 48 {
		t.Errorf("score of %s = %d, want 48", a, results[a].Overall)
	}

	mustRun(t, "score", "--all", "--workers", "2")
	for _, e := range listJSON(t) {
		if e.QualityScore == nil {
			t.Errorf("entry %s not scored", e.Title)
		}
	}

	if _, err := runCmd(t, "score", "missing-id"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEditCommand(t *testing.T) {
	setupCLI(t)
	id := addEntry(t, "Old title", "spam spam spam spam")
	mustRun(t, "score", id)

	mustRun(t, "edit", id, "--title", "New title", "--tags", "a,b", "--content", "fresh words here")

	out := mustRun(t, "show", id)
	var e storage.Entry
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatal(err)
	}
	if e.Title != "New title" || len(e.Tags) != 2 || e.WordCount != 3 {
		t.Errorf("entry = %+v", e)
	}
	if e.QualityScore != nil {
		t.Errorf("quality_score = %d, want cleared after content edit", *e.QualityScore)
	}

	if _, err := runCmd(t, "edit", id, "--title", " "); !errors.Is(err, storage.ErrInvalidEntry) {
		t.Errorf("err = %v, want ErrInvalidEntry", err)
	}
}

func TestDeleteCommand(t *testing.T) {
	setupCLI(t)
	a := addEntry(t, "A", "alpha")
	b := addEntry(t, "B", "beta")

	mustRun(t, "delete", a, "not-there")

	entries := listJSON(t)
	if len(entries) != 1 || entries[0].ID != b {
		t.Errorf("entries = %+v, want only B", entries)
	}
}

func TestDedupCommand(t *testing.T) {
	setupCLI(t, func(c *config.Config) { c.Ingest.SkipDuplicates = false })
	first := addEntry(t, "Speed hacks", "modifying the game clock")
	addEntry(t, "speed hacks", "a different description of clock tampering")
	addEntry(t, "Wallhacks", "rendering enemies through walls")

	out := mustRun(t, "dedup")
	if !strings.Contains(out, "same title") {
		t.Errorf("dedup output = %q", out)
	}
	if n := len(listJSON(t)); n != 3 {
		t.Fatalf("dedup without --remove deleted entries: %d left", n)
	}

	out = mustRun(t, "dedup", "--title", "speed hacks")
	if strings.Count(out, "\n") != 2 {
		t.Errorf("similar titles output = %q, want 2 lines", out)
	}

	mustRun(t, "dedup", "--remove")
	entries := listJSON(t)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Title == "speed hacks" {
			t.Errorf("newer duplicate %s was kept", e.ID)
		}
	}
	if _, err := runCmd(t, "show", first); err != nil {
		t.Errorf("older entry removed: %v", err)
	}
}

func TestExportCommand(t *testing.T) {
	dir := setupCLI(t)
	addEntry(t, "A", "alpha body")
	addEntry(t, "B", "beta body", "--category", "other")

	path := filepath.Join(dir, "train.jsonl")
	out := mustRun(t, "export", "--format", "sharegpt", "-o", path)
	if strings.TrimSpace(out) != path {
		t.Errorf("printed path = %q, want %q", out, path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "alpha body") {
		t.Errorf("first record = %s, want the oldest entry first", lines[0])
	}

	out = mustRun(t, "history")
	if !strings.Contains(out, "sharegpt") || !strings.Contains(out, path) {
		t.Errorf("history output = %q", out)
	}
}

func TestExportCommand_DefaultPathAndFilter(t *testing.T) {
	dir := setupCLI(t)
	addEntry(t, "A", "alpha body")
	addEntry(t, "B", "beta body", "--category", "other")

	out := strings.TrimSpace(mustRun(t, "export", "--category", "other"))
	if filepath.Dir(out) != filepath.Join(dir, "exports") {
		t.Errorf("export dir = %q", filepath.Dir(out))
	}
	if !strings.HasPrefix(filepath.Base(out), "alpaca_") {
		t.Errorf("file name = %q, want alpaca_ prefix", filepath.Base(out))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), "\n") != 1 || !strings.Contains(string(data), "beta body") {
		t.Errorf("export = %q", data)
	}
}

func TestExportCommand_UnsupportedFormat(t *testing.T) {
	dir := setupCLI(t)
	addEntry(t, "A", "alpha body")

	_, err := runCmd(t, "export", "--format", "yaml")
	if !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exports")); !os.IsNotExist(err) {
		t.Errorf("exports dir created for a failed export: %v", err)
	}
}

func TestReportCommand(t *testing.T) {
	dir := setupCLI(t)
	addEntry(t, "A", "alpha body")

	path := filepath.Join(dir, "report.xlsx")
	mustRun(t, "report", "-o", path)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("report is empty")
	}
}

func TestStatsCommand(t *testing.T) {
	setupCLI(t)
	addEntry(t, "A", "one two three", "--source-type", "ocr")
	addEntry(t, "B", "four five")

	out := mustRun(t, "stats", "--json")
	var st api.LibraryStats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if st.TotalEntries != 2 || st.TotalWords != 5 || st.ByType["ocr"] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Quality.Total != 2 {
		t.Errorf("quality total = %d, want 2", st.Quality.Total)
	}
}

func TestCategoriesAndTags(t *testing.T) {
	setupCLI(t)
	addEntry(t, "A", "alpha", "--category", "security", "--tags", "x,y")
	addEntry(t, "B", "beta")

	out := mustRun(t, "categories")
	if !strings.Contains(out, "security") || !strings.Contains(out, storage.DefaultCategory) {
		t.Errorf("categories = %q", out)
	}
	out = mustRun(t, "tags")
	if out != "x\ny\n" {
		t.Errorf("tags = %q, want x and y", out)
	}
}

func TestFormatsCommand(t *testing.T) {
	out := mustRun(t, "formats")
	for _, f := range export.Formats {
		if !strings.Contains(out, string(f)) {
			t.Errorf("formats output missing %s", f)
		}
	}
	for _, name := range export.TemplateNames() {
		if !strings.Contains(out, name) {
			t.Errorf("formats output missing style %s", name)
		}
	}
}

func TestStatusClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/stats":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"total_entries":3,"total_words":40,"scored":2,"by_type":{"web":3},"total_exports":1,"quality":{"total":3,"avg_score":55}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"no such route","type":"not_found"}}`))
		}
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "test-token", httpClient: srv.Client()}

	resp, err := client.get(t.Context(), "/stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st api.LibraryStats
	if err := decodeJSON(resp, &st); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if st.TotalEntries != 3 || st.Quality.AvgScore != 55 {
		t.Errorf("stats = %+v", st)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", gotAuth)
	}

	resp, err = client.get(t.Context(), "/nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, &st)
	if err == nil || !strings.Contains(err.Error(), "no such route") {
		t.Errorf("err = %v, want the server message", err)
	}
}

func TestStatusClient_Stopped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "t", httpClient: http.DefaultClient}
	_, err := client.get(t.Context(), "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestPIDFile(t *testing.T) {
	pid := pidFileIn(t.TempDir())
	if err := pid.write(); err != nil {
		t.Fatal(err)
	}
	n, err := pid.read()
	if err != nil {
		t.Fatal(err)
	}
	if n != os.Getpid() {
		t.Errorf("pid = %d, want %d", n, os.Getpid())
	}
	pid.remove()
	if _, err := pid.read(); err == nil {
		t.Error("PID file still present")
	}
}

func TestStatusClient_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	client := &apiClient{baseURL: srv.URL, token: "t", httpClient: srv.Client()}
	if !client.healthy(t.Context()) {
		t.Error("healthy() = false for a running server")
	}
	srv.Close()
	if client.healthy(t.Context()) {
		t.Error("healthy() = true after the server closed")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b,,c ,")
	want := []string{"a", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitList = %q, want %q", got, want)
	}
	if splitList("") != nil {
		t.Error("splitList of empty string should be nil")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated text", 9, "truncated..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
