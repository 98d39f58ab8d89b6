package inference

import (
	"fmt"
	"os"
	"sync"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures the ONNX Runtime engine
type ONNXConfig struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses
	// the binding's platform default.
	LibraryPath string

	// IntraOpThreads limits per-operator parallelism, 0 lets the runtime decide
	IntraOpThreads int
}

var (
	environmentOnce sync.Once
	environmentErr  error
)

// ONNXEngine creates sessions with ONNX Runtime
type ONNXEngine struct {
	config ONNXConfig
	logger logrus.FieldLogger
}

// NewONNXEngine creates an engine. The runtime environment is initialized
// lazily by the first session, once per process.
func NewONNXEngine(config ONNXConfig, logger logrus.FieldLogger) *ONNXEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ONNXEngine{config: config, logger: logger}
}

func (e *ONNXEngine) initEnvironment() error {
	environmentOnce.Do(func() {
		if e.config.LibraryPath != "" {
			ort.SetSharedLibraryPath(e.config.LibraryPath)
		}
		environmentErr = ort.InitializeEnvironment()
		if environmentErr == nil {
			e.logger.WithField("library", e.config.LibraryPath).Info("onnxruntime environment initialized")
		}
	})
	return environmentErr
}

// NewSession loads the model at modelPath
func (e *ONNXEngine) NewSession(modelPath string) (Session, error) {
	if modelPath == "" {
		return nil, errors.New(errors.CodeModelLoadFailed, "model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrap(errors.CodeModelLoadFailed, "model file not accessible", err)
	}

	if err := e.initEnvironment(); err != nil {
		return nil, errors.Wrap(errors.CodeModelLoadFailed, "failed to initialize onnxruntime", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(errors.CodeModelLoadFailed, "failed to create session options", err)
	}
	defer options.Destroy()

	if e.config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(e.config.IntraOpThreads); err != nil {
			return nil, errors.Wrap(errors.CodeModelLoadFailed, "failed to set thread count", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{InputName}, []string{OutputName}, options)
	if err != nil {
		return nil, errors.Wrap(errors.CodeModelLoadFailed, fmt.Sprintf("failed to load model %s", modelPath), err)
	}

	return &onnxSession{session: session}, nil
}

// Close releases the runtime environment. Sessions must be closed first.
func (e *ONNXEngine) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
}

func (s *onnxSession) Run(input raster.Tensor) (Output, error) {
	tensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Output{}, errors.Wrap(errors.CodeInferenceFailed, "failed to create input tensor", err)
	}
	defer tensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{tensor}, outputs); err != nil {
		return Output{}, errors.Wrap(errors.CodeInferenceFailed, "session run failed", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	result, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Output{}, errors.Newf(errors.CodeInferenceFailed, "output %s is %T, want float32 tensor", OutputName, outputs[0])
	}

	// The runtime owns the output buffer until Destroy
	data := make([]float32, len(result.GetData()))
	copy(data, result.GetData())
	shape := append([]int64(nil), result.GetShape()...)

	return Output{Data: data, Shape: shape}, nil
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
