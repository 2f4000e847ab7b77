package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrUnavailable     = errors.New("model unavailable")
	ErrShapeMismatch   = errors.New("input shape mismatch")
	ErrInference       = errors.New("inference failed")
	ErrLabelMismatch   = errors.New("class labels do not match model output")
	ErrInvalidMetadata = errors.New("invalid model metadata")
)

// ArgMax returns the index of the largest value, the first one on ties, or -1
// for an empty slice.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// Label maps a probability vector onto the class list.
func Label(classes []string, probs []float32) (*Prediction, error) {
	if len(probs) != len(classes) {
		return nil, fmt.Errorf("%w: got %d scores for %d classes", ErrLabelMismatch, len(probs), len(classes))
	}
	idx := ArgMax(probs)
	if idx < 0 {
		return nil, fmt.Errorf("%w: empty output", ErrInference)
	}
	return &Prediction{
		Index:         idx,
		Class:         classes[idx],
		Confidence:    probs[idx],
		Probabilities: append([]float32(nil), probs...),
	}, nil
}

// LoadMetadata reads the JSON sidecar at path, falling back to
// DefaultMetadata for a missing file or omitted fields.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, metadata.Validate()
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metadata, metadata.Validate()
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var parsed Metadata
	if err := json.Unmarshal(metaFile, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.merge(parsed)

	return metadata, metadata.Validate()
}

func (m *Metadata) merge(o Metadata) {
	if len(o.Classes) > 0 {
		m.Classes = o.Classes
		m.OutputShape = []int64{1, int64(len(o.Classes))}
	}
	if o.ImageSize > 0 {
		m.ImageSize = o.ImageSize
		m.InputShape = []int64{1, int64(o.ImageSize), int64(o.ImageSize), 3}
	}
	if o.Layout != "" {
		m.Layout = strings.ToUpper(o.Layout)
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
		}
	}
	if len(o.InputShape) > 0 {
		m.InputShape = o.InputShape
	}
	if len(o.OutputShape) > 0 {
		m.OutputShape = o.OutputShape
	}
	if o.InputName != "" {
		m.InputName = o.InputName
	}
	if o.OutputName != "" {
		m.OutputName = o.OutputName
	}
	if o.Scale != 0 {
		m.Scale = o.Scale
	}
	m.Offset = o.Offset
}

// Validate checks that the input shape fits the image size and layout, and
// that the class list covers the model output exactly.
func (m Metadata) Validate() error {
	if m.ImageSize <= 0 {
		return fmt.Errorf("%w: image_size must be positive", ErrInvalidMetadata)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrInvalidMetadata)
	}

	var want []int64
	switch m.Layout {
	case LayoutNHWC:
		want = []int64{1, int64(m.ImageSize), int64(m.ImageSize), 3}
	case LayoutNCHW:
		want = []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidMetadata, m.Layout)
	}
	if !equalShape(m.InputShape, want) {
		return fmt.Errorf("%w: input_shape %v does not match %s image of size %d", ErrInvalidMetadata, m.InputShape, m.Layout, m.ImageSize)
	}

	if m.OutputSize() != len(m.Classes) {
		return fmt.Errorf("%w: model has %d outputs, %d classes configured", ErrLabelMismatch, m.OutputSize(), len(m.Classes))
	}
	return nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
