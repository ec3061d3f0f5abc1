package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ocr-ledger/internal/export"
	"github.com/zombor/ocr-ledger/internal/ledger"
	"github.com/zombor/ocr-ledger/internal/ocr"
	"github.com/zombor/ocr-ledger/internal/statement"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	fs := ff.NewFlagSet("ocr-ledger")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "ocr-ledger.db", "Database file path")
		storagePath = fs.StringLong("storage", "./uploads", "Directory for uploaded images")
		rulesPath   = fs.StringLong("rules", "", "YAML category rule table (default: built-in household table)")
		recognizer  = fs.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
		languages   = fs.StringLong("tesseract-lang", "kor+eng", "Tesseract languages joined with '+'")
		threshold   = fs.IntLong("threshold", ocr.DefaultThreshold, "Binarization threshold for tesseract (0-255)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		outPath     = fs.StringLong("out", export.Filename, "XLSX output path when files are given as arguments")
		parallel    = fs.IntLong("parallel", 4, "Files processed at once when files are given as arguments")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("OCR_LEDGER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Rule table
	parser := ledger.NewParser(nil)
	if *rulesPath != "" {
		categorizer, err := ledger.LoadCategorizer(*rulesPath)
		if err != nil {
			slog.Error("Failed to load category rules", "path", *rulesPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded category rules", "path", *rulesPath, "rules", len(categorizer.Rules()))
		parser = ledger.NewParser(categorizer)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := statement.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognizer based on type
	var rec ocr.Recognizer
	switch *recognizer {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "languages", *languages, "threshold", *threshold)
		rec, err = ocr.NewTesseract(strings.Split(*languages, "+"), float32(*threshold))
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		rec, err = ocr.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		rec, err = ocr.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid recognizer", "type", *recognizer, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize recognizer", "type", *recognizer, "error", err)
		os.Exit(1)
	}
	defer rec.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := statement.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := statement.NewService(db, rec, store, parser)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Files on the command line: process them and write a workbook instead of serving
	if files := fs.GetArgs(); len(files) > 0 {
		if err := runBatch(ctx, service, files, *parallel, *outPath); err != nil {
			slog.Error("Batch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	basicAuth := statement.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := statement.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
}

// runBatch processes files concurrently and writes all records, in argument
// order, to a single workbook
func runBatch(ctx context.Context, service *statement.Service, files []string, parallel int, outPath string) error {
	uploads := make([]statement.Upload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, statement.Upload{
			Filename:    filepath.Base(path),
			Data:        data,
			ContentType: contentTypeFromExt(path),
		})
	}

	statements, err := service.ProcessBatch(ctx, uploads, parallel)
	if err != nil {
		return err
	}

	var records []ledger.Record
	for _, st := range statements {
		records = append(records, st.Records...)
	}
	if len(records) == 0 {
		return statement.ErrNoTransactions
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	slog.Info("Wrote workbook", "path", outPath, "files", len(files), "statements", len(statements), "records", len(records))
	return nil
}

func contentTypeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "image/jpeg"
	}
}
