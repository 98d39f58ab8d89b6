package pdf

import (
	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
)

// FileInfo represents information about a PDF file
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Warning is a non-fatal finding about a document
type Warning struct {
	Code        errors.Code `json:"code"`
	Message     string      `json:"message"`
	FieldsCount int         `json:"fields_count,omitempty"`
}

// Request Types

// FormValidateRequest represents a request to validate a PDF before detection
type FormValidateRequest struct {
	Path string `json:"path"`
}

// FormDetectRequest represents a request to detect form fields without
// modifying the document
type FormDetectRequest struct {
	Path                string  `json:"path"`
	ModelPath           string  `json:"model_path,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`

	// PreviewDir receives one PNG per page when set
	PreviewDir string `json:"preview_dir,omitempty"`
}

// FormApplyRequest represents a request to detect fields and write a
// fillable copy of the document
type FormApplyRequest struct {
	Path                string  `json:"path"`
	OutputPath          string  `json:"output_path,omitempty"`
	ModelPath           string  `json:"model_path,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	StripExisting       *bool   `json:"strip_existing,omitempty"`
}

// FormListFieldsRequest represents a request to list the AcroForm fields of a PDF
type FormListFieldsRequest struct {
	Path string `json:"path"`
}

// SearchDirectoryRequest represents a request to search for PDF files in a directory
type SearchDirectoryRequest struct {
	Directory string `json:"directory"`
	Query     string `json:"query"`
}

// ServerInfoRequest represents a request to get server information and capabilities
type ServerInfoRequest struct{}

// Response Types

// FormValidateResult represents the result of a validation
type FormValidateResult struct {
	Valid          bool        `json:"valid"`
	Path           string      `json:"path"`
	Message        string      `json:"message,omitempty"`
	Code           errors.Code `json:"code,omitempty"`
	Pages          int         `json:"pages"`
	Size           int64       `json:"size"`
	ExistingFields int         `json:"existing_fields"`
	HasTextLayer   bool        `json:"has_text_layer"`
	Warnings       []Warning   `json:"warnings,omitempty"`
}

// PageSummary describes the detections of one page
type PageSummary struct {
	Page             int                   `json:"page"`
	Detections       []detection.Detection `json:"detections"`
	ProcessingTimeMs float64               `json:"processing_time_ms"`
	PreviewPath      string                `json:"preview_path,omitempty"`
}

// FormDetectResult represents the detections of a whole document
type FormDetectResult struct {
	Path                  string                      `json:"path"`
	Pages                 []PageSummary               `json:"pages"`
	PageCount             int                         `json:"page_count"`
	FieldCount            int                         `json:"field_count"`
	CountByType           map[detection.FieldType]int `json:"count_by_type"`
	ModelIdentifier       string                      `json:"model_identifier"`
	ModelInfo             string                      `json:"model_info"`
	ConfidenceThreshold   float64                     `json:"confidence_threshold"`
	TotalProcessingTimeMs float64                     `json:"total_processing_time_ms"`
}

// FormApplyResult represents the outcome of writing a fillable PDF
type FormApplyResult struct {
	Path                  string                      `json:"path"`
	OutputPath            string                      `json:"output_path"`
	PageCount             int                         `json:"page_count"`
	Fields                []acroform.SynthesizedField `json:"fields"`
	ModelInfo             string                      `json:"model_info"`
	TotalProcessingTimeMs float64                     `json:"total_processing_time_ms"`
}

// FormListFieldsResult represents the AcroForm fields of a document
type FormListFieldsResult struct {
	Path       string           `json:"path"`
	Fields     []acroform.Field `json:"fields"`
	TotalCount int              `json:"total_count"`
	ByKind     map[string]int   `json:"by_kind"`
}

// SearchDirectoryResult represents the result of a PDF search operation
type SearchDirectoryResult struct {
	Files       []FileInfo `json:"files"`
	TotalCount  int        `json:"total_count"`
	Directory   string     `json:"directory"`
	SearchQuery string     `json:"search_query,omitempty"`
	Truncated   bool       `json:"truncated,omitempty"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName          string     `json:"server_name"`
	Version             string     `json:"version"`
	DefaultDirectory    string     `json:"default_directory"`
	MaxFileSize         int64      `json:"max_file_size"`
	ModelPath           string     `json:"model_path"`
	ModelIdentifier     string     `json:"model_identifier"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	RendererStatus      string     `json:"renderer_status"`
	AvailableTools      []ToolInfo `json:"available_tools"`
	DirectoryContents   []FileInfo `json:"directory_contents"`
	UsageGuidance       string     `json:"usage_guidance"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
