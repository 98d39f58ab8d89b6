package inference

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     int
	output Output
	runErr error
	closed bool
}

func (s *fakeSession) Run(raster.Tensor) (Output, error) {
	if s.runErr != nil {
		return Output{}, s.runErr
	}
	return s.output, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	created  []*fakeSession
	loadErr  error
	runErr   error
	output   Output
	lastPath string
}

func (e *fakeEngine) NewSession(modelPath string) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	s := &fakeSession{id: len(e.created), output: e.output, runErr: e.runErr}
	e.created = append(e.created, s)
	e.lastPath = modelPath
	return s, nil
}

func (e *fakeEngine) sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.created)
}

// oneField is a raw output with a single TextBox anchor
func oneField() Output {
	const n = 1
	data := []float32{
		608,   // cx
		304,   // cy
		243.2, // w
		30,    // h
		0.9, 0.05, 0.05,
	}
	return Output{Data: data, Shape: []int64{1, 7, n}}
}

func TestSessionCache_ReuseAndRecreate(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewSessionCache(engine, nil)

	first, err := cache.Get("a.onnx", true)
	require.NoError(t, err)

	again, err := cache.Get("a.onnx", false)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, engine.sessions())

	fresh, err := cache.Get("a.onnx", true)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.True(t, first.(*fakeSession).closed)

	other, err := cache.Get("b.onnx", false)
	require.NoError(t, err)
	assert.NotSame(t, fresh, other)
	assert.Equal(t, "b.onnx", engine.lastPath)
	assert.Equal(t, 3, engine.sessions())
}

func TestSessionCache_Invalidate(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewSessionCache(engine, nil)

	first, err := cache.Get("a.onnx", false)
	require.NoError(t, err)

	cache.Invalidate()
	assert.True(t, first.(*fakeSession).closed)

	second, err := cache.Get("a.onnx", false)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	require.NoError(t, cache.Close())
	assert.True(t, second.(*fakeSession).closed)
	require.NoError(t, cache.Close())
}

func TestSessionCache_LoadFailure(t *testing.T) {
	cache := NewSessionCache(&fakeEngine{loadErr: fmt.Errorf("no such file")}, nil)

	_, err := cache.Get("missing.onnx", true)
	require.Error(t, err)
	assert.Equal(t, errors.CodeModelLoadFailed, errors.CodeOf(err))
}

func startWorker(t *testing.T, engine Engine) *Worker {
	t.Helper()
	w := NewWorker(engine, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func pageRequest(first bool) Request {
	size := detection.TargetSize
	return Request{
		Pixels:              make([]uint8, size*size*4),
		Width:               size,
		Height:              size,
		ModelPath:           "model.onnx",
		ConfidenceThreshold: detection.DefaultConfidenceThreshold,
		IsFirstPage:         first,
	}
}

func TestWorker_Detect(t *testing.T) {
	engine := &fakeEngine{output: oneField()}
	w := startWorker(t, engine)

	fields, err := w.Detect(context.Background(), pageRequest(true))
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, detection.FieldTypeTextBox, fields[0].Type)
	assert.InDelta(t, 0.4, fields[0].BBox.X, 1e-6)

	// Later pages of the same document reuse the session
	_, err = w.Detect(context.Background(), pageRequest(false))
	require.NoError(t, err)
	assert.Equal(t, 1, engine.sessions())

	// A new document starts with a new session
	_, err = w.Detect(context.Background(), pageRequest(true))
	require.NoError(t, err)
	assert.Equal(t, 2, engine.sessions())
}

func TestWorker_ResponseCarriesID(t *testing.T) {
	w := startWorker(t, &fakeEngine{output: oneField()})

	req := pageRequest(true)
	req.ID = "page-1"
	resp, err := w.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "page-1", resp.ID)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestWorker_ErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
		req    Request
		code   errors.Code
	}{
		{
			name:   "model load",
			engine: &fakeEngine{loadErr: fmt.Errorf("corrupt model")},
			req:    pageRequest(true),
			code:   errors.CodeModelLoadFailed,
		},
		{
			name:   "run failure",
			engine: &fakeEngine{runErr: fmt.Errorf("bad input")},
			req:    pageRequest(true),
			code:   errors.CodeInferenceFailed,
		},
		{
			name:   "malformed output",
			engine: &fakeEngine{output: Output{Data: []float32{1, 2}, Shape: []int64{1, 2}}},
			req:    pageRequest(true),
			code:   errors.CodeInferenceFailed,
		},
		{
			name:   "wrong canvas size",
			engine: &fakeEngine{output: oneField()},
			req:    Request{Pixels: make([]uint8, 16), Width: 2, Height: 2, ModelPath: "model.onnx"},
			code:   errors.CodeInferenceFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := startWorker(t, tt.engine)

			resp, err := w.Submit(context.Background(), tt.req)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "["+string(tt.code)+"]")

			_, err = w.Detect(context.Background(), tt.req)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestWorker_InferenceFailureInvalidatesSession(t *testing.T) {
	engine := &fakeEngine{runErr: fmt.Errorf("device lost")}
	w := startWorker(t, engine)

	_, err := w.Detect(context.Background(), pageRequest(true))
	require.Error(t, err)
	_, err = w.Detect(context.Background(), pageRequest(false))
	require.Error(t, err)

	// Not a first page, but the failed session was dropped
	assert.Equal(t, 2, engine.sessions())
	assert.True(t, engine.created[0].closed)
}

func TestWorker_SubmitAfterStop(t *testing.T) {
	w := NewWorker(&fakeEngine{output: oneField()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	cancel()
	<-done

	submitCtx, submitCancel := context.WithTimeout(context.Background(), time.Second)
	defer submitCancel()
	_, err := w.Submit(submitCtx, pageRequest(true))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInferenceFailed, errors.CodeOf(err))
}

func TestWorker_SubmitCancelled(t *testing.T) {
	// No Run loop: the request can never be accepted
	w := NewWorker(&fakeEngine{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Submit(ctx, pageRequest(true))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_ReleasesSessionOnStop(t *testing.T) {
	engine := &fakeEngine{output: oneField()}
	w := NewWorker(engine, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	_, err := w.Detect(context.Background(), pageRequest(true))
	require.NoError(t, err)

	cancel()
	<-done
	require.Len(t, engine.created, 1)
	assert.True(t, engine.created[0].closed)
}

func TestONNXEngine_MissingModel(t *testing.T) {
	engine := NewONNXEngine(ONNXConfig{}, nil)

	_, err := engine.NewSession("")
	assert.Equal(t, errors.CodeModelLoadFailed, errors.CodeOf(err))

	_, err = engine.NewSession("/nonexistent/FFDNet-L.onnx")
	assert.Equal(t, errors.CodeModelLoadFailed, errors.CodeOf(err))
}
