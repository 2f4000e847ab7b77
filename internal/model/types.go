package model

import "github.com/Brownie44l1/leaf-api/internal/preprocess"

// Layouts accepted for the model input tensor.
const (
	LayoutNHWC = preprocess.LayoutNHWC
	LayoutNCHW = preprocess.LayoutNCHW
)

// DefaultClasses is the label order the leaf disease model was trained with.
// It must stay index-aligned with the model output.
var DefaultClasses = []string{"Healthy", "Leaf Spot", "Powdery", "Rust"}

const DefaultImageSize = 299

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
	Layout      string   `json:"layout,omitempty"`
	Scale       float32  `json:"scale,omitempty"`
	Offset      float32  `json:"offset,omitempty"`
}

// DefaultMetadata describes the exported Xception fine-tune: NHWC input with
// raw 0..255 pixels, since the graph carries its own rescaling layer.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{1, DefaultImageSize, DefaultImageSize, 3},
		OutputShape: []int64{1, int64(len(DefaultClasses))},
		Classes:     append([]string(nil), DefaultClasses...),
		ImageSize:   DefaultImageSize,
		Layout:      LayoutNHWC,
		Scale:       1,
	}
}

// InputSize is the number of float32 values one input tensor holds.
func (m Metadata) InputSize() int {
	return shapeSize(m.InputShape)
}

func (m Metadata) OutputSize() int {
	return shapeSize(m.OutputShape)
}

// PreprocessOptions is how uploads must be shaped for this model.
func (m Metadata) PreprocessOptions() preprocess.Options {
	return preprocess.Options{Size: m.ImageSize, Layout: m.Layout, Scale: m.Scale, Offset: m.Offset}
}

func shapeSize(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

type Prediction struct {
	Index         int       `json:"index"`
	Class         string    `json:"class"`
	Confidence    float32   `json:"confidence"`
	Probabilities []float32 `json:"probabilities"`
}

// PredictionResponse is the body of a successful POST /predict.
type PredictionResponse struct {
	PredictedClass string `json:"predicted_class"`
}
