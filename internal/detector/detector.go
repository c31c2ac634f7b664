// Package detector runs a YOLO object detection model on ONNX Runtime.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/doorcount/internal/mempool"
	"github.com/MeKo-Tech/doorcount/internal/models"
	"github.com/MeKo-Tech/doorcount/internal/onnx"
)

// ClassPerson is the COCO class index for people.
const ClassPerson = 0

// Config holds detector configuration.
type Config struct {
	ModelPath    string         // path to a YOLOv8/v11 ONNX export
	LibraryPath  string         // ONNX Runtime shared library; discovered when empty
	InputSize    int            // square model input side (default: 640)
	IoUThreshold float64        // NMS overlap threshold (default: 0.45)
	NumThreads   int            // intra-op threads, 0 = runtime default
	GPU          onnx.GPUConfig // CUDA settings
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:    models.Resolve("", models.PersonDetector),
		InputSize:    640,
		IoUThreshold: 0.45,
		GPU:          onnx.DefaultGPUConfig(),
	}
}

// Validate checks the configuration without touching the filesystem.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.InputSize < 32 || c.InputSize%32 != 0 {
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold must be in (0,1], got %g", c.IoUThreshold)
	}
	return c.GPU.Validate()
}

type runner interface {
	Run(onnx.Tensor) (onnx.Tensor, error)
	Close() error
}

// Detector finds objects in frames.
type Detector struct {
	config Config
	model  runner
}

// New loads the model.
func New(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := models.Validate(config.ModelPath); err != nil {
		return nil, err
	}

	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"input_size", config.InputSize,
		"gpu_enabled", config.GPU.UseGPU)

	sess, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   config.ModelPath,
		LibraryPath: config.LibraryPath,
		NumThreads:  config.NumThreads,
		GPU:         config.GPU,
	})
	if err != nil {
		return nil, err
	}
	return &Detector{config: config, model: sess}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Detect returns boxes of class (any class when negative) scoring at least
// minScore, after NMS.
func (d *Detector) Detect(ctx context.Context, img image.Image, class int, minScore float64) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, lb, err := preprocess(img, d.config.InputSize)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess frame: %w", err)
	}
	defer mempool.PutFloat32(in.Data)

	out, err := d.model.Run(in)
	if err != nil {
		return nil, err
	}

	results, err := decode(out.Data, out.Shape, lb, class, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model output: %w", err)
	}
	return NonMaxSuppression(results, d.config.IoUThreshold), nil
}

// Close releases the model session.
func (d *Detector) Close() error {
	if d.model == nil {
		return nil
	}
	err := d.model.Close()
	d.model = nil
	return err
}
