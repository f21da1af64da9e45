package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/comprobantes/internal/extraction"
	"github.com/zombor/comprobantes/internal/logger"
	"github.com/zombor/comprobantes/internal/receipt"
	"github.com/zombor/comprobantes/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("comprobantes")
	var (
		port         = fs.IntLong("port", 3000, "HTTP server port")
		storeType    = fs.StringLong("store", "sqlite", "Store type: 'sqlite' or 'bolt'")
		dbPath       = fs.StringLong("db", "comprobantes.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./imagenes", "Directory for archived receipt images")
		scannerType  = fs.StringLong("scanner", "none", "Image transcriber: 'none', 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		timezone     = fs.StringLong("timezone", extraction.DefaultTimezone, "Time zone used to date receipts with no readable date")
		minLength    = fs.IntLong("min-length", extraction.DefaultMinLength, "Shortest OCR text accepted as legible, 0 disables the check")
		supportPhone = fs.StringLong("support-phone", "", "Support number shown when a receipt is rejected")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		_            = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("COMPROBANTES"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger.Init(*logLevel)

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}
	if *minLength < 0 {
		slog.Error("Invalid minimum length", "min_length", *minLength)
		os.Exit(1)
	}

	slog.Info("Initializing database...", "store", *storeType, "path", *dbPath)
	db, err := openStore(*storeType, *dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transcriber, err := openTranscriber(*scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
	if err != nil {
		slog.Error("Failed to initialize transcriber", "scanner", *scannerType, "error", err)
		os.Exit(1)
	}
	if transcriber != nil {
		defer transcriber.Close()
	}

	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	extractor := extraction.New(
		extraction.WithLocation(loc),
		extraction.WithMinLength(*minLength),
	)
	service := receipt.NewService(db, extractor, transcriber, store, *supportPhone)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, version)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      150 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version, "timezone", loc.String())
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func openStore(kind, path string) (receipt.DB, error) {
	switch kind {
	case "sqlite":
		return receipt.NewSQLDB(path)
	case "bolt":
		return receipt.NewBoltDB(path)
	default:
		return nil, fmt.Errorf("unknown store %q (valid: sqlite, bolt)", kind)
	}
}

// openTranscriber returns nil for "none"; image submissions are then disabled
func openTranscriber(kind, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Transcriber, error) {
	switch kind {
	case "none", "":
		slog.Info("No transcriber configured, image submissions disabled")
		return nil, nil
	case "gemini":
		if geminiKey == "" {
			geminiKey = os.Getenv("GEMINI_API_KEY")
		}
		if geminiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini transcriber...", "model", geminiModel)
		return scanning.NewGemini(geminiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama transcriber...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel)
	default:
		return nil, fmt.Errorf("unknown scanner %q (valid: none, gemini, ollama)", kind)
	}
}
