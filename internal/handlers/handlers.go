package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brownie44l1/leaf-api/internal/metrics"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/preprocess"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	uploadField       = "file"
	defaultUploadSize = 10 << 20
)

type Options struct {
	Preprocess preprocess.Options
	// UploadDir holds the per-request temp files; empty means os.TempDir.
	UploadDir      string
	MaxUploadBytes int64
	// DistinctErrorCodes reports bad uploads as 4xx and a missing model as
	// 503. Otherwise every failure is a 500.
	DistinctErrorCodes bool
	Metrics            *metrics.Metrics
}

type Handler struct {
	predictor model.Predictor
	opts      Options
}

func NewHandler(predictor model.Predictor, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultUploadSize
	}
	if opts.Preprocess.Size <= 0 {
		opts.Preprocess.Size = model.DefaultImageSize
	}
	return &Handler{predictor: predictor, opts: opts}
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(h.Health))
	r.Get("/health", RestHandler(h.Health))
	r.With(h.limitBody).Post("/predict", RestHandler(h.Predict))
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics.Handler())
	}
}

type HealthResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// limitBody caps the whole request body at MaxUploadBytes.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

// Health never looks at the model.
func (h *Handler) Health(r *http.Request) (any, error) {
	return HealthResponse{Message: "Plant Disease Detection API", Status: "healthy"}, nil
}

func (h *Handler) Predict(r *http.Request) (any, error) {
	reqID := middleware.GetReqID(r.Context())

	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, h.fail("too_large", http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, err))
		}
		return nil, h.fail("bad_request", http.StatusBadRequest, fmt.Errorf("failed to parse form: %w", err))
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return nil, h.fail("bad_request", http.StatusBadRequest,
			fmt.Errorf("no image file provided, use '%s' as the form field name: %w", uploadField, err))
	}
	defer file.Close()

	slog.Debug("received file", "request_id", reqID, "filename", header.Filename, "size", header.Size)

	result, err := h.predictUpload(file, header.Filename)
	if err != nil {
		kind, code := classify(err)
		return nil, h.fail(kind, code, err)
	}

	slog.Info("prediction", "request_id", reqID, "class", result.Class, "confidence", result.Confidence)
	return model.PredictionResponse{PredictedClass: result.Class}, nil
}

// predictUpload stages the upload in a temp file that is removed before it
// returns, whatever the outcome.
func (h *Handler) predictUpload(upload multipart.File, filename string) (*model.Prediction, error) {
	tmpPath, err := h.stage(upload, filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove temp upload", "path", tmpPath, "error", err)
		}
	}()

	staged, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen staged upload: %w", err)
	}
	defer staged.Close()

	inputData, err := preprocess.Load(staged, h.opts.Preprocess)
	if err != nil {
		return nil, err
	}

	if h.predictor == nil {
		return nil, model.ErrUnavailable
	}

	start := time.Now()
	result, err := h.predictor.Predict(inputData)
	if err != nil {
		return nil, err
	}
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObservePrediction(result.Class, time.Since(start))
	}
	return result, nil
}

func (h *Handler) stage(upload io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = ".img"
	}

	tmp, err := os.CreateTemp(h.opts.UploadDir, "upload-"+uuid.NewString()+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, upload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	return tmp.Name(), nil
}

func (h *Handler) fail(kind string, code int, err error) error {
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveError(kind)
	}
	if !h.opts.DistinctErrorCodes {
		code = http.StatusInternalServerError
	}
	return CodedError(code, err)
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, preprocess.ErrImageTooLarge):
		return "too_large", http.StatusRequestEntityTooLarge
	case errors.Is(err, preprocess.ErrDecode):
		return "decode", http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUnavailable):
		return "unavailable", http.StatusServiceUnavailable
	case errors.Is(err, model.ErrShapeMismatch):
		return "shape", http.StatusInternalServerError
	case errors.Is(err, model.ErrInference), errors.Is(err, model.ErrLabelMismatch):
		return "inference", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}
