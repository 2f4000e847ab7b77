package model

import (
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"
)

// Predictor turns one preprocessed input tensor into a labelled prediction.
type Predictor interface {
	Predict(input []float32) (*Prediction, error)
}

// Server holds the ONNX session for the leaf disease model. The session is
// only read after construction, and every Predict call allocates its own
// tensors, so one Server is shared by all requests without locking.
type Server struct {
	session  *ort.DynamicAdvancedSession
	Metadata Metadata
	ownsEnv  bool
}

func NewServer(modelPath, metadataPath string) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		ownsEnv = true
	}

	s, err := newServer(modelPath, metadata)
	if err != nil {
		if ownsEnv {
			ort.DestroyEnvironment() //nolint:errcheck
		}
		return nil, err
	}
	s.ownsEnv = ownsEnv
	return s, nil
}

func newServer(modelPath string, metadata Metadata) (*Server, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info from %s: %w", modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: model declares no inputs or outputs", ErrInvalidMetadata)
	}

	if metadata.InputName == "" {
		metadata.InputName = inputs[0].Name
	}
	if metadata.OutputName == "" {
		metadata.OutputName = outputs[0].Name
	}

	if err := checkDims(ioDims(inputs, metadata.InputName), metadata.InputShape); err != nil {
		return nil, fmt.Errorf("model input %q: %w", metadata.InputName, err)
	}

	if dims := ioDims(outputs, metadata.OutputName); len(dims) > 0 {
		if last := dims[len(dims)-1]; last > 0 && int(last) != len(metadata.Classes) {
			return nil, fmt.Errorf("%w: model output %q has %d classes, %d labels configured",
				ErrLabelMismatch, metadata.OutputName, last, len(metadata.Classes))
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("model loaded", "path", modelPath, "input", metadata.InputName, "output", metadata.OutputName,
		"input_shape", metadata.InputShape, "classes", metadata.Classes)

	return &Server{session: session, Metadata: metadata}, nil
}

func ioDims(infos []ort.InputOutputInfo, name string) ort.Shape {
	for _, o := range infos {
		if o.Name == name {
			return o.Dimensions
		}
	}
	return nil
}

// checkDims compares the shape a model declares with the configured one.
// Dimensions the model leaves dynamic (<= 0) match anything. An empty
// declaration is not checked.
func checkDims(declared ort.Shape, want []int64) error {
	if len(declared) == 0 {
		return nil
	}
	if len(declared) != len(want) {
		return fmt.Errorf("%w: model declares %v, metadata has %v", ErrShapeMismatch, declared, want)
	}
	for i, d := range declared {
		if d > 0 && d != want[i] {
			return fmt.Errorf("%w: model declares %v, metadata has %v", ErrShapeMismatch, declared, want)
		}
	}
	return nil
}

func (s *Server) Predict(inputData []float32) (*Prediction, error) {
	if s == nil || s.session == nil {
		return nil, ErrUnavailable
	}
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, want, len(inputData))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(s.Metadata.InputShape...), inputData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", ErrInference, err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", ErrInference, err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	return Label(s.Metadata.Classes, outputTensor.GetData())
}

func (s *Server) Close() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.ownsEnv {
		ort.DestroyEnvironment()
	}
}
