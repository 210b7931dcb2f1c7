package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/hisab/internal/capture"
	"github.com/zombor/hisab/internal/receipt"
	"github.com/zombor/hisab/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const usage = `commands:
  serve           run the local API (default)
  whoami          print the current user
  scan <path>     process an image file
  camera          process an image read from stdin
  receipts        print the stored receipts
  sync            refresh receipts from the server history
  logout          remove the user and all receipts`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code, after the
// deferred closes have run
func run(args []string) int {
	// Check for version flag before parsing other flags
	for _, arg := range args {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			return 0
		}
	}

	// A missing .env is fine; flags and the environment still apply
	_ = godotenv.Load()

	fs := ff.NewFlagSet("hisab")
	var (
		dbPath       = fs.StringLong("db", "hisab.db", "Session database file path")
		capturesPath = fs.StringLong("captures", "./captures", "Directory for captured and uploaded images")
		extractor    = fs.StringLong("extractor", "agent", "Extractor type: 'agent', 'gemini' or 'ollama'")
		agentURL     = fs.StringLong("agent-url", "http://localhost:8000", "Receipt agent base URL")
		agentTimeout = fs.DurationLong("agent-timeout", 0, "Timeout for agent requests (0 waits indefinitely)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		port         = fs.IntLong("port", 8080, "HTTP server port")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("HISAB"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n%s\n", ffhelp.Flags(fs), usage)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	args = fs.GetArgs()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := receipt.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to open session database", "error", err)
		return 1
	}
	defer store.Close()

	storage, err := capture.NewLocalStorage(*capturesPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		return 1
	}

	var (
		ext     scanning.Extractor
		history scanning.HistorySource = scanning.NoHistory{}
	)
	switch *extractor {
	case "agent":
		slog.Info("Using receipt agent", "url", *agentURL, "timeout", *agentTimeout)
		agent, err := scanning.NewAgent(*agentURL, *agentTimeout)
		if err != nil {
			slog.Error("Failed to initialize agent client", "error", err)
			return 1
		}
		ext, history = agent, agent
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			return 1
		}
		slog.Info("Using Gemini", "model", *geminiModel)
		ext, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			return 1
		}
	case "ollama":
		slog.Info("Using Ollama", "url", *ollamaURL, "model", *ollamaModel)
		ext, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			return 1
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractor, "valid", "agent, gemini or ollama")
		return 1
	}
	defer ext.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coordinator := receipt.NewCoordinatorWithDeps(
		store,
		scanning.NewImageEncoder(),
		ext,
		history,
		receipt.NewGeneratedIdentity(),
		receipt.NewMetrics(registry),
	)
	if err := coordinator.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize app", "error", err)
		return 1
	}

	switch command {
	case "serve":
		basicAuth := receipt.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		}
		err = serve(ctx, receipt.NewServer(coordinator, storage, registry, basicAuth), *port, basicAuth)
	case "whoami":
		err = printJSON(os.Stdout, coordinator.State().User)
	case "scan":
		if len(args) != 1 {
			err = errors.New("usage: hisab scan <path>")
			break
		}
		path := args[0]
		adapter := capture.NewAdapter(
			capture.DirPermissions{CameraDir: *capturesPath, LibraryDir: filepath.Dir(path)},
			nil,
			capture.PathPicker(path),
		)
		err = acquire(ctx, coordinator, adapter.AcquireFromGallery)
	case "camera":
		adapter := capture.NewAdapter(
			capture.DirPermissions{CameraDir: *capturesPath},
			capture.NewReaderCamera(os.Stdin, storage),
			nil,
		)
		err = acquire(ctx, coordinator, adapter.AcquireFromCamera)
	case "receipts":
		err = printJSON(os.Stdout, coordinator.State().Receipts)
	case "sync":
		if err = coordinator.LoadUserReceipts(ctx); err == nil {
			err = printJSON(os.Stdout, coordinator.State().Receipts)
		}
	case "logout":
		err = coordinator.Logout(ctx)
	default:
		err = fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	if err != nil {
		slog.Error("Command failed", "command", command, "error", err)
		return 1
	}
	return 0
}

// acquire runs a picker through the pipeline and prints the new receipt
func acquire(ctx context.Context, coordinator *receipt.Coordinator, pick receipt.AcquireFunc) error {
	result, ok, err := coordinator.AcquireAndProcess(ctx, pick)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("No image selected")
		return nil
	}
	return printJSON(os.Stdout, result)
}

func serve(ctx context.Context, server *receipt.Server, port int, auth receipt.BasicAuth) error {
	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if auth.Username != "" || auth.Password != "" {
		slog.Info("Basic auth enabled", "user", auth.Username)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
