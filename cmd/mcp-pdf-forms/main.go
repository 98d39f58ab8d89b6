package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-pdf-forms/internal/config"
	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/mcp"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/sirupsen/logrus"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// newLogger writes to stderr in every mode since stdout carries the MCP
// stream in stdio mode
func newLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(cfg.LogrusLevel())
	if cfg.IsServerMode() {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return logger
}

// newService wires the ONNX engine and the pdftoppm renderer into the PDF service
func newService(cfg *config.Config, logger *logrus.Logger) (*pdf.Service, *inference.ONNXEngine, error) {
	engine := inference.NewONNXEngine(inference.ONNXConfig{
		LibraryPath:    cfg.ONNXRuntimeLibrary,
		IntraOpThreads: cfg.IntraOpThreads,
	}, logger)
	renderer := raster.NewPdftoppmRenderer(cfg.PdftoppmPath, cfg.RenderTimeout, logger)
	if err := renderer.Available(); err != nil {
		logger.WithError(err).Warn("page renderer unavailable, detection will fail until it is installed")
	}

	svc, err := pdf.NewService(pdf.ServiceConfig{
		MaxFileSize:         cfg.MaxFileSize,
		Directory:           cfg.PDFDirectory,
		ModelPath:           cfg.ModelPath,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StripExisting:       cfg.StripExisting,
	}, engine, renderer, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, engine, nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion(os.Stdout)
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger := newLogger(cfg, os.Stderr)
	logger.WithField("config", cfg.String()).Debug("configuration loaded")

	pdfService, engine, err := newService(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create PDF service")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.WithError(err).Warn("failed to release onnxruntime")
		}
	}()

	server, err := mcp.NewServer(cfg, pdfService, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create MCP server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("server stopped with error")
		stop()
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP PDF Forms\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
