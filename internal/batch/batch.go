// Package batch classifies a folder of leaf images offline.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/preprocess"
	"github.com/Brownie44l1/leaf-api/internal/workers"
)

var imageExts = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}}

type Result struct {
	Path       string
	Prediction *model.Prediction
	Err        error
}

func (r Result) String() string {
	name := filepath.Base(r.Path)
	if r.Err != nil {
		return fmt.Sprintf("%s: error: %v", name, r.Err)
	}
	return fmt.Sprintf("%s: %s (%.2f%%)", name, r.Prediction.Class, r.Prediction.Confidence*100)
}

// ListImages returns path itself when it is a file, or the images directly
// inside it, sorted by name.
func ListImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			images = append(images, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

func PredictFile(predictor model.Predictor, opts preprocess.Options, path string) (*model.Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inputData, err := preprocess.Load(f, opts)
	if err != nil {
		return nil, err
	}
	return predictor.Predict(inputData)
}

// Run predicts every path with up to maxWorkers goroutines. onDone, if set,
// is called once per finished file. Results come back in path order.
func Run(predictor model.Predictor, opts preprocess.Options, paths []string, maxWorkers int, onDone func()) []Result {
	queue := make(chan string, len(paths))
	for _, p := range paths {
		queue <- p
	}
	close(queue)

	completed := make(chan workers.CompletedTask[string, *model.Prediction], len(paths))
	workers.RunInPool(func(path string) (*model.Prediction, error) {
		return PredictFile(predictor, opts, path)
	}, queue, completed, maxWorkers)

	results := make([]Result, 0, len(paths))
	for task := range completed {
		results = append(results, Result{Path: task.Input, Prediction: task.Result, Err: task.Error})
		if onDone != nil {
			onDone()
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results
}
