package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/loratk/internal/api"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API server and scoring worker (foreground)",
	Long: `Run the local HTTP API on 127.0.0.1 together with the background scoring
worker. With --mcp the MCP server is also served over stdin/stdout, so loratk
can be registered as an MCP tool provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")
		return runServer(withMCP, port)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running loratk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and library status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
}

// pidFile records the PID of the foreground server inside the data dir.
type pidFile string

func pidFileIn(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "loratk.pid"))
}

func (p pidFile) write() error {
	if err := os.MkdirAll(filepath.Dir(string(p)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p pidFile) remove() {
	os.Remove(string(p))
}

func runServer(withMCP bool, port int) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close()
	cfg := lib.cfg
	if port > 0 {
		cfg.Server.Port = port
	}
	slog.Info("starting loratk", "version", version, "port", cfg.Server.Port, "data_dir", cfg.Storage.DataDir)

	client, err := newAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	pid := pidFileIn(cfg.Storage.DataDir)
	if client.healthy(context.Background()) {
		if n, err := pid.read(); err == nil {
			return fmt.Errorf("server already running (PID %d)", n)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	format, err := export.ParseFormat(cfg.Export.DefaultFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := lib.collector()
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Store:         lib.store,
			Collector:     collector,
			Checker:       lib.checker,
			Token:         client.token,
			ExportsDir:    cfg.ExportsPath(),
			ExportOptions: cfg.ExportOptions(),
			DefaultFormat: format,
			MinScore:      cfg.Export.MinScore,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go ingest.NewWorker(lib.store, 500*time.Millisecond).Run(ctx)

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:         lib.store,
			Collector:     collector,
			Checker:       lib.checker,
			ExportsDir:    cfg.ExportsPath(),
			ExportOptions: cfg.ExportOptions(),
			DefaultFormat: format,
			MinScore:      cfg.Export.MinScore,
		}, version)
		go func() {
			err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server stopped", "error", err)
			}
		}()
		slog.Info("MCP server attached to stdio")
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pid := pidFileIn(cfg.Storage.DataDir)
	n, err := pid.read()
	if err != nil {
		return fmt.Errorf("loratk is not running: %w", err)
	}
	proc, err := os.FindProcess(n)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", n, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		pid.remove()
		return fmt.Errorf("stopping loratk (PID %d): %w", n, err)
	}

	printSuccess("Sent stop signal to loratk (PID %d)", n)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	if client.healthy(ctx) {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if err := printRemoteStats(ctx, client); err != nil {
			printWarning("reading stats: %v", err)
		}
	} else {
		printStatus("Server", "stopped")
	}

	printStatus("Default format", "%s", cfg.Export.DefaultFormat)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Exports dir", "%s", cfg.ExportsPath())
	return nil
}

func printRemoteStats(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/stats")
	if err != nil {
		return err
	}
	var st api.LibraryStats
	if err := decodeJSON(resp, &st); err != nil {
		return err
	}
	printStats(st)
	return nil
}
