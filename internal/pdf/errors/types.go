package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Code identifies a category of pipeline failure. Codes are stable strings so
// they can cross process and protocol boundaries unchanged.
type Code string

const (
	CodePDFLoadFailed           Code = "pdf_load_failed"
	CodePDFEncryptedOrMalformed Code = "pdf_encrypted_or_malformed"
	CodePDFProcessingFailed     Code = "pdf_processing_failed"
	CodeCanvasRenderFailed      Code = "canvas_render_failed"
	CodeModelLoadFailed         Code = "model_load_failed"
	CodeInferenceFailed         Code = "inference_failed"
	CodeFieldCreationFailed     Code = "field_creation_failed"
	CodePDFSaveFailed           Code = "pdf_save_failed"
	CodeInvalidDetectionResult  Code = "invalid_detection_result"
	CodeUnknown                 Code = "unknown_error"

	// CodePDFHasAcroFields is a warning, the document already has fields.
	CodePDFHasAcroFields Code = "pdf_has_acrofields"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityWarning ErrorSeverity = iota
	SeverityError
	SeverityFatal
)

// PipelineError is the tagged failure returned across component boundaries.
type PipelineError struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Page      int       `json:"page,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("]")
	if e.Page > 0 {
		fmt.Fprintf(&b, " page %d:", e.Page)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithPage records the 1-based page the failure belongs to
func (e *PipelineError) WithPage(page int) *PipelineError {
	e.Page = page
	return e
}

// Severity returns how the pipeline treats errors of this code
func (c Code) Severity() ErrorSeverity {
	switch c {
	case CodePDFLoadFailed, CodePDFEncryptedOrMalformed, CodeCanvasRenderFailed,
		CodeModelLoadFailed, CodeInferenceFailed, CodeFieldCreationFailed, CodePDFSaveFailed:
		return SeverityFatal
	case CodePDFProcessingFailed, CodeInvalidDetectionResult:
		return SeverityError
	case CodePDFHasAcroFields:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// InvalidatesSession reports whether a failure of this code must drop the
// cached inference session so the next attempt recreates it.
func (c Code) InvalidatesSession() bool {
	return c == CodeModelLoadFailed || c == CodeInferenceFailed
}

// New creates a PipelineError without an underlying cause
func New(code Code, message string) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a PipelineError with a formatted message
func Newf(code Code, format string, args ...interface{}) *PipelineError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap tags err with code. An error that already carries a PipelineError
// keeps its original code.
func Wrap(code Code, message string, err error) *PipelineError {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}
	return &PipelineError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Retag wraps err under code, replacing any code err already carries
func Retag(code Code, message string, err error) *PipelineError {
	pe := New(code, message)
	pe.Err = err
	return pe
}

// CodeOf extracts the code of err, falling back to CodeUnknown
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsEncryptionError recognizes the messages PDF readers produce for
// encrypted or password protected documents.
func IsEncryptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}

// As is errors.As from the standard library
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
