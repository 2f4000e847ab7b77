package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgMax(t *testing.T) {
	assert.Equal(t, -1, model.ArgMax(nil))
	assert.Equal(t, 0, model.ArgMax([]float32{0.7}))
	assert.Equal(t, 2, model.ArgMax([]float32{0.1, 0.2, 0.6, 0.1}))
	assert.Equal(t, 1, model.ArgMax([]float32{0.1, 0.4, 0.4, 0.1}), "ties go to the lowest index")
	assert.Equal(t, 0, model.ArgMax([]float32{0.25, 0.25, 0.25, 0.25}))
	assert.Equal(t, 3, model.ArgMax([]float32{-3, -2, -1, -0.5}))
}

func TestLabel(t *testing.T) {
	pred, err := model.Label(model.DefaultClasses, []float32{0.05, 0.1, 0.8, 0.05})
	require.NoError(t, err)
	assert.Equal(t, 2, pred.Index)
	assert.Equal(t, "Powdery", pred.Class)
	assert.InDelta(t, 0.8, pred.Confidence, 1e-6)
	assert.Len(t, pred.Probabilities, 4)

	_, err = model.Label(model.DefaultClasses, []float32{0.5, 0.5})
	assert.ErrorIs(t, err, model.ErrLabelMismatch)
}

func TestDefaultMetadata(t *testing.T) {
	m := model.DefaultMetadata()
	require.NoError(t, m.Validate())
	assert.Equal(t, 299*299*3, m.InputSize())
	assert.Equal(t, 4, m.OutputSize())
	assert.Equal(t, []string{"Healthy", "Leaf Spot", "Powdery", "Rust"}, m.Classes)

	m.Classes[0] = "changed"
	assert.Equal(t, "Healthy", model.DefaultClasses[0], "metadata must not alias the default class list")
}

func writeMetadata(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMetadata(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		m, err := model.LoadMetadata(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		assert.Equal(t, model.DefaultMetadata(), m)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		m, err := model.LoadMetadata("")
		require.NoError(t, err)
		assert.Equal(t, model.DefaultMetadata(), m)
	})

	t.Run("Overrides", func(t *testing.T) {
		m, err := model.LoadMetadata(writeMetadata(t, `{
			"classes": ["a", "b", "c"],
			"image_size": 224,
			"layout": "nchw",
			"input_name": "input",
			"output_name": "output",
			"scale": 0.0078431375,
			"offset": -1
		}`))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 224, 224}, m.InputShape)
		assert.Equal(t, []int64{1, 3}, m.OutputShape)
		assert.Equal(t, model.LayoutNCHW, m.Layout)
		assert.Equal(t, "input", m.InputName)
		assert.Equal(t, "output", m.OutputName)
		assert.InDelta(t, 0.0078431375, m.Scale, 1e-9)
		assert.InDelta(t, -1, m.Offset, 1e-9)
	})

	t.Run("LabelCountMismatch", func(t *testing.T) {
		_, err := model.LoadMetadata(writeMetadata(t, `{"output_shape": [1, 5]}`))
		assert.ErrorIs(t, err, model.ErrLabelMismatch)
	})

	t.Run("BadInputShape", func(t *testing.T) {
		_, err := model.LoadMetadata(writeMetadata(t, `{"input_shape": [1, 3, 299, 299]}`))
		assert.ErrorIs(t, err, model.ErrInvalidMetadata)
	})

	t.Run("UnknownLayout", func(t *testing.T) {
		_, err := model.LoadMetadata(writeMetadata(t, `{"layout": "HWC"}`))
		assert.ErrorIs(t, err, model.ErrInvalidMetadata)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := model.LoadMetadata(writeMetadata(t, `{"classes": `))
		assert.Error(t, err)
	})
}
