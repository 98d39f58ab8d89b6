package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-forms/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	model         string
	confidence    float64
	output        string
	report        string
	previews      string
	stripExisting bool
	detectOnly    bool
	onnxLibrary   string
	threads       int
	pdftoppm      string
	renderTimeout time.Duration
	verbose       bool
}

// report is the JSON document written with --report
type report struct {
	Input               string                      `json:"input"`
	Output              string                      `json:"output,omitempty"`
	PageCount           int                         `json:"page_count"`
	FieldCount          int                         `json:"field_count"`
	CountByType         map[detection.FieldType]int `json:"count_by_type"`
	ModelIdentifier     string                      `json:"model_identifier"`
	ConfidenceThreshold float64                     `json:"confidence_threshold"`
	ProcessingTimeMs    float64                     `json:"processing_time_ms"`
	Pages               []pipeline.PageResult       `json:"pages"`
	Fields              []acroform.SynthesizedField `json:"fields,omitempty"`
	Previews            []string                    `json:"previews,omitempty"`
}

// backendFactory builds the inference engine and page renderer for a run.
// The returned func releases them.
type backendFactory func(opts *options, logger logrus.FieldLogger) (inference.Engine, raster.Renderer, func())

func newRootCmd(newBackend backendFactory) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "pdf_detect_forms [flags] <pdf-file>",
		Short: "Detect form fields in a PDF and write a fillable copy",
		Long: `Detect form fields on every page of a flat or scanned PDF and write a
copy with real AcroForm fields.

Examples:
  pdf_detect_forms intake.pdf
  pdf_detect_forms intake.pdf -o intake-fillable.pdf --confidence 0.5
  pdf_detect_forms scan.pdf --detect-only --report - --previews ./previews`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := detection.ValidateThreshold(opts.confidence); err != nil {
				return err
			}

			logger := logrus.New()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(logrus.WarnLevel)
			if opts.verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			engine, renderer, release := newBackend(opts, logger)
			defer release()
			return run(cmd.Context(), opts, args[0], engine, renderer, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.model, "model", "models/FFDNet-L.onnx", "path to the FFDNet ONNX model")
	flags.Float64Var(&opts.confidence, "confidence", detection.DefaultConfidenceThreshold, "detection confidence threshold (0.1-1.0)")
	flags.StringVarP(&opts.output, "output", "o", "", "fillable PDF to write (default <name>_with_fields.pdf)")
	flags.StringVar(&opts.report, "report", "", "write a JSON report to this file, '-' for stdout")
	flags.StringVar(&opts.previews, "previews", "", "directory for annotated page previews")
	flags.BoolVar(&opts.stripExisting, "strip-existing", false, "flatten existing form fields first")
	flags.BoolVar(&opts.detectOnly, "detect-only", false, "only detect fields, do not write a PDF")
	flags.StringVar(&opts.onnxLibrary, "onnxruntime-lib", "", "path to the onnxruntime shared library")
	flags.IntVar(&opts.threads, "threads", 0, "ONNX Runtime intra-op threads")
	flags.StringVar(&opts.pdftoppm, "pdftoppm", "pdftoppm", "pdftoppm binary used to render pages")
	flags.DurationVar(&opts.renderTimeout, "render-timeout", raster.DefaultRenderTimeout, "timeout for rendering a single page")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

// onnxBackend runs the real model with ONNX Runtime and renders with pdftoppm
func onnxBackend(opts *options, logger logrus.FieldLogger) (inference.Engine, raster.Renderer, func()) {
	engine := inference.NewONNXEngine(inference.ONNXConfig{
		LibraryPath:    opts.onnxLibrary,
		IntraOpThreads: opts.threads,
	}, logger)
	renderer := raster.NewPdftoppmRenderer(opts.pdftoppm, opts.renderTimeout, logger)
	return engine, renderer, func() {
		if err := engine.Close(); err != nil {
			logger.WithError(err).Warn("failed to release onnxruntime")
		}
	}
}

func run(ctx context.Context, opts *options, input string, engine inference.Engine, renderer raster.Renderer,
	logger logrus.FieldLogger, stdout io.Writer,
) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	orchestrator := pipeline.NewOrchestrator(engine, renderer, acroform.DefaultLayoutPolicy, logger)
	pipelineOpts := pipeline.Options{
		ModelPath:           opts.model,
		ConfidenceThreshold: opts.confidence,
		StripExisting:       opts.stripExisting,
		Previews:            opts.previews != "",
	}

	out := report{Input: input}
	var detected *pipeline.DetectionReport
	if opts.detectOnly {
		detected, err = orchestrator.Detect(ctx, data, pipelineOpts, nil)
		if err != nil {
			return err
		}
	} else {
		result, err := orchestrator.Process(ctx, data, pipelineOpts, nil)
		if err != nil {
			return err
		}
		detected = result.Report
		out.Fields = result.Fields
		out.Output = opts.output
		if out.Output == "" {
			out.Output = pdf.DefaultOutputPath(input)
		}
		if err := os.WriteFile(out.Output, result.PDF, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out.Output, err)
		}
	}

	out.PageCount = detected.PageCount
	out.FieldCount = detected.FieldCount()
	out.CountByType = detected.CountByType()
	out.ModelIdentifier = detected.ModelIdentifier
	out.ConfidenceThreshold = detected.ConfidenceThreshold
	out.ProcessingTimeMs = detected.TotalProcessingTimeMs
	out.Pages = detected.Pages

	if opts.previews != "" {
		out.Previews, err = writePreviews(opts.previews, input, detected.Pages)
		if err != nil {
			return err
		}
	}

	if opts.report != "" {
		if err := writeReport(opts.report, out, stdout); err != nil {
			return err
		}
	}
	if opts.report != "-" {
		printSummary(stdout, out)
	}
	return nil
}

func writePreviews(dir, input string, pages []pipeline.PageResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	paths := make([]string, 0, len(pages))
	for _, page := range pages {
		path := filepath.Join(dir, fmt.Sprintf("%s_page_%d.png", base, page.Page))
		if err := os.WriteFile(path, page.Preview, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write preview: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeReport(path string, out report, stdout io.Writer) error {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, out report) {
	fmt.Fprintf(w, "Input: %s\n", out.Input)
	fmt.Fprintf(w, "Model: %s (confidence %v)\n", out.ModelIdentifier, out.ConfidenceThreshold)
	fmt.Fprintf(w, "Pages: %d, fields detected: %d\n", out.PageCount, out.FieldCount)
	for _, t := range detection.ClassNames {
		if n := out.CountByType[t]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", t, n)
		}
	}
	if out.Output != "" {
		fmt.Fprintf(w, "Fillable PDF: %s (%d fields)\n", out.Output, len(out.Fields))
	}
	for _, p := range out.Previews {
		fmt.Fprintf(w, "Preview: %s\n", p)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(onnxBackend).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
