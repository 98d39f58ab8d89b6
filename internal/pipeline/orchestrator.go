// Package pipeline runs form detection over whole documents and applies the
// detections as fillable fields.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Orchestrator wires rasterization, inference and synthesis together.
// Pages of a document are processed one at a time.
type Orchestrator struct {
	engine      inference.Engine
	rasterizer  *raster.Rasterizer
	synthesizer *acroform.Synthesizer
	logger      logrus.FieldLogger
}

// NewOrchestrator creates an orchestrator. A nil policy uses the default
// layout policy.
func NewOrchestrator(engine inference.Engine, renderer raster.Renderer, policy acroform.LayoutPolicy, logger logrus.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		engine:      engine,
		rasterizer:  raster.NewRasterizer(renderer, logger),
		synthesizer: acroform.NewSynthesizer(policy, logger),
		logger:      logger,
	}
}

// Detect finds form fields on every page of data. Cancelling ctx stops
// before the next page; a page already submitted for inference completes.
func (o *Orchestrator) Detect(ctx context.Context, data []byte, opts Options, progress ProgressFunc) (*DetectionReport, error) {
	start := time.Now()
	opts = withDefaults(opts)
	if err := detection.ValidateThreshold(opts.ConfidenceThreshold); err != nil {
		return nil, err
	}

	report := func(p Progress) {
		o.logger.WithFields(logrus.Fields{
			"page":  p.Page,
			"pages": p.PageCount,
		}).Info(p.Message)
		if progress != nil {
			progress(p)
		}
	}

	report(Progress{Message: "Loading PDF..."})
	doc, err := wrapper.Load(data)
	if err != nil {
		return nil, err
	}

	src, err := raster.NewSource(data)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	worker := inference.NewWorker(o.engine, o.logger)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var pages []PageResult
	g, gctx := errgroup.WithContext(workerCtx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		defer stopWorker()
		var err error
		pages, err = o.detectPages(gctx, ctx, doc, src, worker, opts, report)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	identifier := ModelIdentifier(opts.ModelPath)
	result := &DetectionReport{
		Pages:                 pages,
		PageCount:             doc.PageCount(),
		TotalProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		ModelIdentifier:       identifier,
		ConfidenceThreshold:   opts.ConfidenceThreshold,
	}
	result.ModelInfo = modelInfo(identifier, result.FieldCount(), opts.ConfidenceThreshold)

	o.logger.WithFields(logrus.Fields{
		"pages":    result.PageCount,
		"fields":   result.FieldCount(),
		"model":    identifier,
		"duration": time.Since(start).String(),
	}).Info("detection completed")

	return result, nil
}

// detectPages runs the page loop. gctx ends with the worker, callerCtx is
// checked between pages so cancellation is reported to the caller as such.
func (o *Orchestrator) detectPages(gctx, callerCtx context.Context, doc *wrapper.Document, src *raster.Source, worker *inference.Worker, opts Options, report ProgressFunc) ([]PageResult, error) {
	identifier := ModelIdentifier(opts.ModelPath)
	count := doc.PageCount()
	results := make([]PageResult, 0, count)

	for page := 1; page <= count; page++ {
		if err := callerCtx.Err(); err != nil {
			return nil, err
		}
		pageStart := time.Now()

		report(Progress{Page: page, PageCount: count, Message: fmt.Sprintf("Rendering page %d of %d...", page, count)})
		box, err := doc.PageBox(page)
		if err != nil {
			return nil, errors.Retag(errors.CodePDFLoadFailed, "failed to read page size", err).WithPage(page)
		}
		frame, err := o.rasterizer.Rasterize(gctx, src, page, box)
		if err != nil {
			return nil, err
		}

		report(Progress{Page: page, PageCount: count, Message: "Preprocessing image..."})
		req := inference.Request{
			Pixels:              frame.Pixels(),
			Width:               frame.Size(),
			Height:              frame.Size(),
			ModelPath:           opts.ModelPath,
			ConfidenceThreshold: opts.ConfidenceThreshold,
			IsFirstPage:         page == 1,
		}

		report(Progress{Page: page, PageCount: count,
			Message: fmt.Sprintf("Running form field detection using %s model...", identifier)})
		fields, err := worker.Detect(gctx, req)
		if err != nil {
			if callerErr := callerCtx.Err(); callerErr != nil {
				return nil, callerErr
			}
			var pe *errors.PipelineError
			if errors.As(err, &pe) {
				return nil, pe.WithPage(page)
			}
			return nil, err
		}

		result := PageResult{
			Page:       page,
			Detections: fields,
			Transform:  frame.Transform,
		}
		if opts.Previews {
			preview, err := RenderPreview(frame, fields)
			if err != nil {
				o.logger.WithError(err).WithField("page", page).Warn("failed to render preview")
			}
			result.Preview = preview
		}
		result.ProcessingTimeMs = float64(time.Since(pageStart).Microseconds()) / 1000
		results = append(results, result)

		o.logger.WithFields(logrus.Fields{
			"page":   page,
			"fields": len(fields),
		}).Debug("page processed")
	}

	return results, nil
}

// Apply writes the detections of report into data as fillable fields
func (o *Orchestrator) Apply(data []byte, report *DetectionReport, stripExisting bool) ([]byte, []acroform.SynthesizedField, error) {
	if report == nil {
		return nil, nil, errors.New(errors.CodeInvalidDetectionResult, "detection result is missing")
	}
	return o.synthesizer.Apply(data, report.PageDetections(), acroform.Options{StripExisting: stripExisting})
}

// Process detects fields and applies them in one run
func (o *Orchestrator) Process(ctx context.Context, data []byte, opts Options, progress ProgressFunc) (*Result, error) {
	report, err := o.Detect(ctx, data, opts, progress)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(Progress{Message: "Creating form fields..."})
	}
	out, fields, err := o.Apply(data, report, opts.StripExisting)
	if err != nil {
		return nil, err
	}

	return &Result{Report: report, Fields: fields, PDF: out}, nil
}

func withDefaults(opts Options) Options {
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = detection.DefaultConfidenceThreshold
	}
	return opts
}
