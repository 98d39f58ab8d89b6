package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/sirupsen/logrus"
)

// Validator checks that a file can go through form detection
type Validator struct {
	maxFileSize int64
	logger      logrus.FieldLogger
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64, logger logrus.FieldLogger) *Validator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Validator{
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// ValidateFile runs the file checks followed by the document checks. A
// document that fails validation is reported in the result, not as an error.
func (v *Validator) ValidateFile(req FormValidateRequest) (*FormValidateResult, error) {
	result := &FormValidateResult{Path: req.Path}

	info, err := v.checkFile(req.Path)
	if err != nil {
		result.Message = err.Error()
		return result, nil //nolint:nilerr // reported through the result
	}
	result.Size = info.Size()

	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}

	if err := v.ValidateDocument(data, result); err != nil {
		result.Message = err.Error()
		result.Code = errors.CodeOf(err)
		return result, nil //nolint:nilerr // reported through the result
	}

	result.Valid = true
	return result, nil
}

// ValidateDocument loads data, writes it back out and inspects the existing
// form. Findings are recorded in result.
func (v *Validator) ValidateDocument(data []byte, result *FormValidateResult) error {
	doc, err := wrapper.Load(data)
	if err != nil {
		return classifyLoadError(err)
	}
	if doc.Encrypted() {
		return errors.New(errors.CodePDFEncryptedOrMalformed, "document is encrypted")
	}

	if _, err := doc.Bytes(); err != nil {
		return errors.Retag(errors.CodePDFProcessingFailed, "document cannot be saved", err)
	}
	result.Pages = doc.PageCount()

	count, err := acroform.CountFields(doc)
	if err != nil {
		return errors.Retag(errors.CodePDFProcessingFailed, "failed to read form", err)
	}
	result.ExistingFields = count
	if count > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Code:        errors.CodePDFHasAcroFields,
			Message:     fmt.Sprintf("document already has %d form field(s)", count),
			FieldsCount: count,
		})
	}

	// The text layer only informs; scanned pages are the common case.
	layer, err := wrapper.ProbeTextLayer(data)
	if err != nil {
		v.logger.WithError(err).Debug("text layer probe failed")
		return nil
	}
	result.HasTextLayer = layer.HasText()

	return nil
}

// classifyLoadError keeps encryption failures apart from other load errors
func classifyLoadError(err error) error {
	if errors.Is(err, errors.CodePDFEncryptedOrMalformed) || errors.IsEncryptionError(err) {
		return errors.Retag(errors.CodePDFEncryptedOrMalformed, "document is encrypted or malformed", err)
	}
	return errors.Retag(errors.CodePDFProcessingFailed, "document cannot be loaded", err)
}

// checkFile performs the checks that do not require parsing
func (v *Validator) checkFile(filePath string) (os.FileInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return nil, err
	}
	return fileInfo, nil
}

// ReadFile returns the content of a file that passes the file checks
func (v *Validator) ReadFile(filePath string) ([]byte, error) {
	if _, err := v.checkFile(filePath); err != nil {
		return nil, errors.Wrap(errors.CodePDFLoadFailed, "invalid input file", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(errors.CodePDFLoadFailed, "failed to read input file", err)
	}
	return data, nil
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !strings.HasSuffix(strings.ToLower(filePath), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
