package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/security"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/a3tai/mcp-pdf-forms/internal/pipeline"
	"github.com/sirupsen/logrus"
)

const (
	outputSuffix = "_with_fields.pdf"
	filePerm     = 0o644
	dirPerm      = 0o750
)

// ServiceConfig holds the settings the service applies when a request
// leaves them out
type ServiceConfig struct {
	MaxFileSize         int64
	Directory           string
	ModelPath           string
	ConfidenceThreshold float64
	StripExisting       bool
}

// Service handles form operations on PDF files inside the configured directory
type Service struct {
	config        ServiceConfig
	renderer      raster.Renderer
	validator     *Validator
	search        *Search
	pathValidator *security.PathValidator
	modelPaths    *security.PathValidator
	orchestrator  *pipeline.Orchestrator
	logger        logrus.FieldLogger
}

// NewService creates a PDF service with all components
func NewService(cfg ServiceConfig, engine inference.Engine, renderer raster.Renderer, logger logrus.FieldLogger) (*Service, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if engine == nil || renderer == nil {
		return nil, fmt.Errorf("inference engine and page renderer are required")
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("maxFileSize must be greater than 0")
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = detection.DefaultConfidenceThreshold
	}
	if err := detection.ValidateThreshold(cfg.ConfidenceThreshold); err != nil {
		return nil, err
	}

	pathValidator, err := security.NewPathValidator(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	// Requests may pick another model, but only next to the configured one
	modelPaths, err := security.NewPathValidator(filepath.Dir(cfg.ModelPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create model path validator: %w", err)
	}

	validator := NewValidator(cfg.MaxFileSize, logger)
	return &Service{
		config:        cfg,
		renderer:      renderer,
		validator:     validator,
		search:        NewSearch(validator),
		pathValidator: pathValidator,
		modelPaths:    modelPaths,
		orchestrator:  pipeline.NewOrchestrator(engine, renderer, acroform.DefaultLayoutPolicy, logger),
		logger:        logger,
	}, nil
}

// ValidateFile checks that a PDF can be processed
func (s *Service) ValidateFile(req FormValidateRequest) (*FormValidateResult, error) {
	if err := s.pathValidator.ValidatePath(req.Path); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return s.validator.ValidateFile(req)
}

// DetectFields runs detection over a document without modifying it
func (s *Service) DetectFields(ctx context.Context, req FormDetectRequest, progress pipeline.ProgressFunc) (*FormDetectResult, error) {
	if err := s.pathValidator.ValidatePath(req.Path); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	if req.PreviewDir != "" {
		if err := s.pathValidator.ValidateDirectory(req.PreviewDir); err != nil {
			return nil, fmt.Errorf("security validation failed: %w", err)
		}
	}

	if err := s.validateModelPath(req.ModelPath); err != nil {
		return nil, err
	}

	data, err := s.validator.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	opts := s.options(req.ModelPath, req.ConfidenceThreshold, nil)
	opts.Previews = req.PreviewDir != ""
	report, err := s.orchestrator.Detect(ctx, data, opts, progress)
	if err != nil {
		return nil, err
	}

	result := &FormDetectResult{
		Path:                  req.Path,
		Pages:                 make([]PageSummary, 0, len(report.Pages)),
		PageCount:             report.PageCount,
		FieldCount:            report.FieldCount(),
		CountByType:           report.CountByType(),
		ModelIdentifier:       report.ModelIdentifier,
		ModelInfo:             report.ModelInfo,
		ConfidenceThreshold:   report.ConfidenceThreshold,
		TotalProcessingTimeMs: report.TotalProcessingTimeMs,
	}
	for _, page := range report.Pages {
		summary := PageSummary{
			Page:             page.Page,
			Detections:       page.Detections,
			ProcessingTimeMs: page.ProcessingTimeMs,
		}
		if len(page.Preview) > 0 {
			summary.PreviewPath, err = s.writePreview(req.PreviewDir, req.Path, page)
			if err != nil {
				return nil, err
			}
		}
		result.Pages = append(result.Pages, summary)
	}

	return result, nil
}

func (s *Service) writePreview(dir, input string, page pipeline.PageResult) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	path := filepath.Join(dir, fmt.Sprintf("%s_page_%d.png", base, page.Page))
	if err := os.WriteFile(path, page.Preview, filePerm); err != nil {
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	s.search.Invalidate()
	return path, nil
}

// ApplyFields detects fields and writes a fillable copy of the document
func (s *Service) ApplyFields(ctx context.Context, req FormApplyRequest, progress pipeline.ProgressFunc) (*FormApplyResult, error) {
	if err := s.pathValidator.ValidatePath(req.Path); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	output := req.OutputPath
	if output == "" {
		output = DefaultOutputPath(req.Path)
	}
	if err := s.pathValidator.ValidatePath(output); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	if sameFile(req.Path, output) {
		return nil, fmt.Errorf("output path must differ from the input path")
	}
	if err := s.validateModelPath(req.ModelPath); err != nil {
		return nil, err
	}

	data, err := s.validator.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.Process(ctx, data, s.options(req.ModelPath, req.ConfidenceThreshold, req.StripExisting), progress)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(output, result.PDF, filePerm); err != nil {
		return nil, errors.Wrap(errors.CodePDFSaveFailed, "failed to write output file", err)
	}
	s.search.Invalidate()

	s.logger.WithFields(logrus.Fields{
		"input":  req.Path,
		"output": output,
		"fields": len(result.Fields),
	}).Info("fillable PDF written")

	return &FormApplyResult{
		Path:                  req.Path,
		OutputPath:            output,
		PageCount:             result.Report.PageCount,
		Fields:                result.Fields,
		ModelInfo:             result.Report.ModelInfo,
		TotalProcessingTimeMs: result.Report.TotalProcessingTimeMs,
	}, nil
}

// ListFields returns the AcroForm fields of a document
func (s *Service) ListFields(req FormListFieldsRequest) (*FormListFieldsResult, error) {
	if err := s.pathValidator.ValidatePath(req.Path); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	data, err := s.validator.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}
	doc, err := wrapper.Load(data)
	if err != nil {
		return nil, err
	}
	fields, err := acroform.ListFields(doc)
	if err != nil {
		return nil, errors.Wrap(errors.CodePDFProcessingFailed, "failed to read form", err)
	}

	byKind := make(map[string]int)
	for _, f := range fields {
		byKind[string(f.Kind)]++
	}

	return &FormListFieldsResult{
		Path:       req.Path,
		Fields:     fields,
		TotalCount: len(fields),
		ByKind:     byKind,
	}, nil
}

// SearchDirectory searches for PDF files in a directory
func (s *Service) SearchDirectory(ctx context.Context, req SearchDirectoryRequest) (*SearchDirectoryResult, error) {
	if req.Directory == "" {
		req.Directory = s.pathValidator.GetConfiguredDirectory()
	}
	if err := s.pathValidator.ValidateDirectory(req.Directory); err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return s.search.SearchDirectory(ctx, req)
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.config.MaxFileSize
}

// Directory returns the directory the service is confined to
func (s *Service) Directory() string {
	return s.pathValidator.GetConfiguredDirectory()
}

// validateModelPath confines a requested model to the configured model's directory
func (s *Service) validateModelPath(modelPath string) error {
	if modelPath == "" {
		return nil
	}
	if err := s.modelPaths.ValidatePath(modelPath); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}
	return nil
}

func (s *Service) options(modelPath string, threshold float64, strip *bool) pipeline.Options {
	opts := pipeline.Options{
		ModelPath:           s.config.ModelPath,
		ConfidenceThreshold: s.config.ConfidenceThreshold,
		StripExisting:       s.config.StripExisting,
	}
	if modelPath != "" {
		opts.ModelPath = modelPath
	}
	if threshold != 0 {
		opts.ConfidenceThreshold = threshold
	}
	if strip != nil {
		opts.StripExisting = *strip
	}
	return opts
}

// DefaultOutputPath places the fillable copy next to the input
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + outputSuffix
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
