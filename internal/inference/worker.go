package inference

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

// Request asks the worker to detect fields on one letterboxed page
type Request struct {
	ID                  string  `json:"id"`
	Pixels              []uint8 `json:"-"`
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	ModelPath           string  `json:"model_path"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IsFirstPage         bool    `json:"is_first_page"`
}

// Response carries either the ordered detections or a tagged error
type Response struct {
	ID      string                `json:"id"`
	Success bool                  `json:"success"`
	Fields  []detection.Detection `json:"fields,omitempty"`
	Error   *ResponseError        `json:"error,omitempty"`
}

// ResponseError is the wire form of a PipelineError
type ResponseError struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// Worker owns the session cache and serves one request at a time
type Worker struct {
	cache     *SessionCache
	logger    logrus.FieldLogger
	requests  chan Request
	responses chan Response
	done      chan struct{}

	// submitMu keeps a single request in flight
	submitMu sync.Mutex
}

// NewWorker creates a worker backed by engine. Run must be started before
// Submit is called.
func NewWorker(engine Engine, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		cache:     NewSessionCache(engine, logger),
		logger:    logger,
		requests:  make(chan Request),
		responses: make(chan Response, 1),
		done:      make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled, then releases the session.
// A worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	defer func() {
		if err := w.cache.Close(); err != nil {
			w.logger.WithError(err).Warn("failed to release inference session")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-w.requests:
			w.responses <- w.handle(req)
		}
	}
}

// Submit sends a request and waits for its response. Once the worker has
// accepted the request the response is always awaited, so cancellation
// only prevents requests that have not started.
func (w *Worker) Submit(ctx context.Context, req Request) (Response, error) {
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	if req.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return Response{}, fmt.Errorf("nanoid: %w", err)
		}
		req.ID = id
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-w.done:
		return Response{}, errors.New(errors.CodeInferenceFailed, "inference worker stopped")
	case w.requests <- req:
	}

	resp := <-w.responses
	if resp.ID != req.ID {
		return Response{}, errors.Newf(errors.CodeUnknown, "response %s does not match request %s", resp.ID, req.ID)
	}
	return resp, nil
}

// Detect submits a request and converts a failed response into an error
func (w *Worker) Detect(ctx context.Context, req Request) ([]detection.Detection, error) {
	resp, err := w.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error == nil {
			return nil, errors.New(errors.CodeUnknown, "worker reported failure without an error")
		}
		return nil, errors.New(resp.Error.Code, resp.Error.Message)
	}
	return resp.Fields, nil
}

func (w *Worker) handle(req Request) (resp Response) {
	start := time.Now()
	logger := w.logger.WithFields(logrus.Fields{
		"request": req.ID,
		"model":   req.ModelPath,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("inference worker recovered from panic")
			w.cache.Invalidate()
			resp = failure(req.ID, errors.Newf(errors.CodeUnknown, "inference panicked: %v", r))
		}
	}()

	fields, err := w.detect(req)
	if err != nil {
		code := errors.CodeOf(err)
		if code.InvalidatesSession() {
			w.cache.Invalidate()
		}
		logger.WithError(err).WithField("code", code).Warn("inference request failed")
		return failure(req.ID, err)
	}

	logger.WithFields(logrus.Fields{
		"fields":   len(fields),
		"duration": time.Since(start).String(),
	}).Debug("inference request completed")

	return Response{ID: req.ID, Success: true, Fields: fields}
}

func (w *Worker) detect(req Request) ([]detection.Detection, error) {
	if req.Width != detection.TargetSize || req.Height != detection.TargetSize {
		return nil, errors.Newf(errors.CodeInferenceFailed,
			"input must be %dx%d, got %dx%d", detection.TargetSize, detection.TargetSize, req.Width, req.Height)
	}

	tensor, err := raster.NewTensor(req.Pixels, req.Width, req.Height)
	if err != nil {
		return nil, err
	}

	session, err := w.cache.Get(req.ModelPath, req.IsFirstPage)
	if err != nil {
		return nil, err
	}

	output, err := session.Run(tensor)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInferenceFailed, "model run failed", err)
	}

	fields, err := detection.Postprocess(output.Data, output.Shape, req.ConfidenceThreshold)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInferenceFailed, "unexpected model output", err)
	}
	return fields, nil
}

func failure(id string, err error) Response {
	message := err.Error()
	var pe *errors.PipelineError
	if stderrors.As(err, &pe) {
		message = pe.Message
		if pe.Err != nil {
			message += ": " + pe.Err.Error()
		}
	}
	return Response{
		ID:      id,
		Success: false,
		Error:   &ResponseError{Code: errors.CodeOf(err), Message: message},
	}
}
