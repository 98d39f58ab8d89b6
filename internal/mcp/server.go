package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/config"
	"github.com/a3tai/mcp-pdf-forms/internal/descriptions"
	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf"
	"github.com/a3tai/mcp-pdf-forms/internal/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	logger     *logrus.Logger

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		logger:     logger,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolValidatePDF,
		mcp.WithDescription(descriptions.ValidatePDFDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleValidatePDF)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolDetectFields,
		mcp.WithDescription(descriptions.DetectFieldsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Minimum detection confidence between 0.1 and 1.0 (uses the server default if omitted)"),
		),
		mcp.WithString("model",
			mcp.Description("Path to an ONNX detection model (uses the server default if omitted)"),
		),
		mcp.WithString("preview_dir",
			mcp.Description("Directory to write annotated page previews to"),
		),
	), s.handleDetectFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolApplyFields,
		mcp.WithDescription(descriptions.ApplyFieldsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithString("output",
			mcp.Description("Path of the fillable PDF (defaults to <name>_with_fields.pdf next to the input)"),
		),
		mcp.WithNumber("confidence",
			mcp.Description("Minimum detection confidence between 0.1 and 1.0 (uses the server default if omitted)"),
		),
		mcp.WithString("model",
			mcp.Description("Path to an ONNX detection model (uses the server default if omitted)"),
		),
		mcp.WithBoolean("strip_existing",
			mcp.Description("Flatten existing form fields before adding the detected ones"),
		),
	), s.handleApplyFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolListFields,
		mcp.WithDescription(descriptions.ListFieldsDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleListFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolSearchDirectory,
		mcp.WithDescription(descriptions.SearchDirectoryDescription),
		mcp.WithString("directory",
			mcp.Description("Directory path to search (uses default if empty)"),
		),
		mcp.WithString("query",
			mcp.Description("Optional search query for fuzzy matching"),
		),
	), s.handleSearchDirectory)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolServerInfo,
		mcp.WithDescription(descriptions.ServerInfoDescription),
	), s.handleServerInfo)
}

// Handler functions

func (s *Server) handleValidatePDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.ValidateFile(pdf.FormValidateRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatValidateResult(result)), nil
}

func (s *Server) handleDetectFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	req := pdf.FormDetectRequest{
		Path:                path,
		ModelPath:           stringArg(args, "model"),
		ConfidenceThreshold: floatArg(args, "confidence"),
		PreviewDir:          stringArg(args, "preview_dir"),
	}

	result, err := s.pdfService.DetectFields(ctx, req, s.progressReporter(ctx, request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatDetectResult(result)), nil
}

func (s *Server) handleApplyFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	req := pdf.FormApplyRequest{
		Path:                path,
		OutputPath:          stringArg(args, "output"),
		ModelPath:           stringArg(args, "model"),
		ConfidenceThreshold: floatArg(args, "confidence"),
	}
	if strip, ok := args["strip_existing"].(bool); ok {
		req.StripExisting = &strip
	}

	result, err := s.pdfService.ApplyFields(ctx, req, s.progressReporter(ctx, request))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatApplyResult(result)), nil
}

func (s *Server) handleListFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.ListFields(pdf.FormListFieldsRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatListFieldsResult(result)), nil
}

func (s *Server) handleSearchDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := pdf.SearchDirectoryRequest{
		Directory: stringArg(args, "directory"),
		Query:     stringArg(args, "query"),
	}

	result, err := s.pdfService.SearchDirectory(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if result.TotalCount == 0 {
		text := fmt.Sprintf("No PDF files found in directory: %s", result.Directory)
		if result.SearchQuery != "" {
			text += fmt.Sprintf(" (searched for: %s)", result.SearchQuery)
		}
		return mcp.NewToolResultText(text), nil
	}

	return mcp.NewToolResultText(s.formatSearchDirectoryResult(result)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.ServerInfo(ctx, s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

// progressReporter logs pipeline progress and forwards it to the client
// when the request carries a progress token
func (s *Server) progressReporter(ctx context.Context, request mcp.CallToolRequest) pipeline.ProgressFunc {
	var token mcp.ProgressToken
	if request.Params.Meta != nil {
		token = request.Params.Meta.ProgressToken
	}

	return func(p pipeline.Progress) {
		s.logger.WithFields(logrus.Fields{
			"tool": request.Params.Name,
			"page": p.Page,
		}).Debug(p.Message)

		if token == nil {
			return
		}
		params := map[string]any{
			"progressToken": token,
			"progress":      p.Page,
			"message":       p.Message,
		}
		if p.PageCount > 0 {
			params["total"] = p.PageCount
		}
		if err := s.mcpServer.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
			s.logger.WithError(err).Debug("failed to send progress notification")
		}
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Formatting functions

func (s *Server) formatValidateResult(result *pdf.FormValidateResult) string {
	if !result.Valid {
		text := fmt.Sprintf("PDF validation failed: %s\n", result.Path)
		if result.Code != "" {
			text += fmt.Sprintf("Code: %s\n", result.Code)
		}
		text += fmt.Sprintf("Reason: %s\n", result.Message)
		return text
	}

	text := fmt.Sprintf("PDF is valid: %s\n", result.Path)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Existing form fields: %d\n", result.ExistingFields)
	text += fmt.Sprintf("Has text layer: %t\n", result.HasTextLayer)

	for _, w := range result.Warnings {
		text += fmt.Sprintf("\nWarning [%s]: %s\n", w.Code, w.Message)
	}
	if !result.HasTextLayer {
		text += "\nThe document has no text layer and is probably scanned. Detection works on the rendered page, so it can still be processed.\n"
	}

	return text
}

func (s *Server) formatDetectResult(result *pdf.FormDetectResult) string {
	text := fmt.Sprintf("Form field detection for: %s\n", result.Path)
	text += result.ModelInfo + "\n"
	text += fmt.Sprintf("Pages: %d\n", result.PageCount)
	text += fmt.Sprintf("Confidence threshold: %v\n", result.ConfidenceThreshold)
	text += fmt.Sprintf("Processing time: %.0f ms\n", result.TotalProcessingTimeMs)
	text += formatCounts(result.CountByType)

	for _, page := range result.Pages {
		text += fmt.Sprintf("\nPage %d: %d fields (%.0f ms)\n", page.Page, len(page.Detections), page.ProcessingTimeMs)
		for i, d := range page.Detections {
			text += fmt.Sprintf("  %d. %s at (%.3f, %.3f) size %.3fx%.3f, confidence %.2f\n",
				i+1, d.Type, d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H, d.Confidence)
		}
		if page.PreviewPath != "" {
			text += fmt.Sprintf("  Preview: %s\n", page.PreviewPath)
		}
	}

	if result.FieldCount > 0 {
		text += fmt.Sprintf("\nUse '%s' to write a fillable copy.\n", descriptions.ToolApplyFields)
	}

	return text
}

func (s *Server) formatApplyResult(result *pdf.FormApplyResult) string {
	text := fmt.Sprintf("Fillable PDF written: %s\n", result.OutputPath)
	text += fmt.Sprintf("Source: %s\n", result.Path)
	text += result.ModelInfo + "\n"
	text += fmt.Sprintf("Pages: %d\n", result.PageCount)
	text += fmt.Sprintf("Fields created: %d\n", len(result.Fields))
	text += fmt.Sprintf("Processing time: %.0f ms\n", result.TotalProcessingTimeMs)

	if len(result.Fields) > 0 {
		text += "\nFields:\n"
		for i, f := range result.Fields {
			text += fmt.Sprintf("%d. %s (%s) page %d at [%.1f, %.1f, %.1f x %.1f]",
				i+1, f.Name, f.Type, f.Page, f.Rect.X, f.Rect.Y, f.Rect.Width, f.Rect.Height)
			if f.Multiline {
				text += ", multiline"
			}
			text += "\n"
		}
	}

	return text
}

func (s *Server) formatListFieldsResult(result *pdf.FormListFieldsResult) string {
	if result.TotalCount == 0 {
		return fmt.Sprintf("No form fields found in: %s\n", result.Path)
	}

	text := fmt.Sprintf("Form fields in: %s\n", result.Path)
	text += fmt.Sprintf("Total fields: %d\n", result.TotalCount)

	kinds := make([]string, 0, len(result.ByKind))
	for kind := range result.ByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		text += fmt.Sprintf("  %s: %d\n", kind, result.ByKind[kind])
	}

	text += "\nFields:\n"
	for i, f := range result.Fields {
		text += fmt.Sprintf("%d. %s (%s)", i+1, f.Name, f.Kind)
		if f.Page > 0 {
			text += fmt.Sprintf(" page %d", f.Page)
		}
		text += fmt.Sprintf(" at [%.1f, %.1f, %.1f x %.1f]", f.Rect.X, f.Rect.Y, f.Rect.Width, f.Rect.Height)
		if f.Value != "" {
			text += fmt.Sprintf(" value %q", f.Value)
		}
		text += "\n"
	}

	return text
}

func (s *Server) formatSearchDirectoryResult(result *pdf.SearchDirectoryResult) string {
	text := fmt.Sprintf("Found %d PDF file(s) in %s", result.TotalCount, result.Directory)
	if result.SearchQuery != "" {
		text += fmt.Sprintf(" matching '%s'", result.SearchQuery)
	}
	text += ":\n\n"

	for i, file := range result.Files {
		text += fmt.Sprintf("%d. %s\n", i+1, file.Name)
		text += fmt.Sprintf("   Path: %s\n", file.Path)
		text += fmt.Sprintf("   Size: %d bytes\n", file.Size)
		text += fmt.Sprintf("   Modified: %s\n\n", file.ModifiedTime)
	}

	if result.Truncated {
		text += "Results were truncated; refine the query to narrow them down.\n"
	}

	return text
}

func (s *Server) formatServerInfoResult(result *pdf.ServerInfoResult) string {
	text := fmt.Sprintf("%s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("Default Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Model: %s (%s)\n", result.ModelIdentifier, result.ModelPath)
	text += fmt.Sprintf("Default Confidence: %v\n", result.ConfidenceThreshold)
	text += fmt.Sprintf("Renderer: %s\n\n", result.RendererStatus)

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("Directory Contents (%d PDF files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "Directory Contents: No PDF files found in default directory\n\n"
	}

	text += "Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

func formatCounts(counts map[detection.FieldType]int) string {
	text := ""
	for _, t := range detection.ClassNames {
		if n := counts[t]; n > 0 {
			text += fmt.Sprintf("  %s: %d\n", t, n)
		}
	}
	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over stdin and stdout until the input closes or
// ctx is cancelled
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.WithField("directory", s.config.PDFDirectory).Info("starting PDF forms MCP server in stdio mode")

	errWriter := s.logger.WriterLevel(logrus.ErrorLevel)
	defer errWriter.Close()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(errWriter, "", 0))

	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE on the configured address until ctx
// is cancelled
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	s.logger.WithFields(logrus.Fields{
		"address":   addr,
		"directory": s.config.PDFDirectory,
	}).Info("starting PDF forms MCP server in SSE mode")

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve SSE: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down SSE server: %w", err)
	}
	return nil
}
