package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/descriptions"
	"github.com/a3tai/mcp-pdf-forms/internal/pipeline"
)

const (
	serverInfoFileLimit = 100
	serverInfoScanTime  = 5 * time.Second
)

// availabilityChecker is implemented by renderers that depend on an
// external program
type availabilityChecker interface {
	Available() error
}

// ServerInfo returns server information, the detection setup and the PDF
// files of the configured directory. A slow or failing directory scan
// leaves the contents empty instead of failing the call.
func (s *Service) ServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	directory := s.pathValidator.GetConfiguredDirectory()

	scanCtx, cancel := context.WithTimeout(ctx, serverInfoScanTime)
	defer cancel()

	contents := []FileInfo{}
	if listing, err := s.search.SearchDirectory(scanCtx, SearchDirectoryRequest{Directory: directory}); err == nil {
		contents = listing.Files
		if len(contents) > serverInfoFileLimit {
			contents = contents[:serverInfoFileLimit]
		}
	} else {
		s.logger.WithError(err).Debug("directory scan for server info failed")
	}

	tools := make([]ToolInfo, 0, len(descriptions.Tools))
	for _, tool := range descriptions.Tools {
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Summary,
			Usage:       tool.Usage,
			Parameters:  tool.Parameters,
		})
	}

	return &ServerInfoResult{
		ServerName:          serverName,
		Version:             version,
		DefaultDirectory:    directory,
		MaxFileSize:         s.config.MaxFileSize,
		ModelPath:           s.config.ModelPath,
		ModelIdentifier:     pipeline.ModelIdentifier(s.config.ModelPath),
		ConfidenceThreshold: s.config.ConfidenceThreshold,
		RendererStatus:      s.rendererStatus(),
		AvailableTools:      tools,
		DirectoryContents:   contents,
		UsageGuidance:       s.usageGuidance(),
	}, nil
}

func (s *Service) rendererStatus() string {
	checker, ok := s.renderer.(availabilityChecker)
	if !ok {
		return "available"
	}
	if err := checker.Available(); err != nil {
		return "unavailable: " + err.Error()
	}
	return "available"
}

func (s *Service) usageGuidance() string {
	return `PDF Forms MCP Server Usage Guide:

1. FIND DOCUMENTS:
   - Use '` + descriptions.ToolSearchDirectory + `' to find PDF files

2. VALIDATE:
   - Use '` + descriptions.ToolValidatePDF + `' to check a document can be processed
   - A pdf_has_acrofields warning means the document already has form fields

3. DETECT:
   - Use '` + descriptions.ToolDetectFields + `' to see which fields the model finds
   - Fields are TextBox, ChoiceButton (checkbox) or Signature

4. APPLY:
   - Use '` + descriptions.ToolApplyFields + `' to write a fillable copy
   - Field names are textbox_N, choicebutton_N and signature_N, numbered across the document
   - Use '` + descriptions.ToolListFields + `' to inspect the result

IMPORTANT NOTES:
- Paths must be inside the default directory
- The server can handle files up to ` + fmt.Sprintf("%d", s.config.MaxFileSize/(1024*1024)) + `MB
- Confidence thresholds range from 0.1 to 1.0 (default ` + fmt.Sprintf("%v", s.config.ConfidenceThreshold) + `)
- Pages are rendered with pdftoppm; detection needs the renderer to be available`
}
