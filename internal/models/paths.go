// Package models resolves ONNX model file locations.
package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// PersonDetector is the default person detection model (YOLOv8n export).
const PersonDetector = "yolov8n.onnx"

// DefaultModelsDir is used when nothing else is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "DOORCOUNT_MODELS_DIR"

// Dir returns the models directory. Priority: explicit, environment, default.
func Dir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	return DefaultModelsDir
}

// Resolve returns the model path. Absolute paths and paths containing a
// directory component are returned unchanged; bare names are joined with Dir.
func Resolve(dir, model string) string {
	if model == "" {
		model = PersonDetector
	}
	if filepath.IsAbs(model) || filepath.Base(model) != model {
		return model
	}
	return filepath.Join(Dir(dir), model)
}

// Validate checks that a model file exists.
func Validate(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file not found: %s", path)
	}
	if st.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}
	return nil
}
