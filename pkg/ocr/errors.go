package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEngine is returned when a batch names an engine that is not registered.
	ErrUnknownEngine = errors.New("unknown ocr engine")
	// ErrEngineUnavailable is returned when an engine cannot be constructed
	// from the current settings (for example missing cloud credentials).
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
	// ErrMissingBox is returned when an unordered engine yields a token without a box.
	ErrMissingBox = errors.New("token has no bounding box")
)

// Stage names the pipeline step an image failed in.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageRecognize  Stage = "recognize"
	StageReorder    Stage = "reorder"
	StageExtract    Stage = "extract"
	StageAnnotate   Stage = "annotate"
)

// ProcessingError wraps the failure of one image. Other images in the
// same batch are not affected by it.
type ProcessingError struct {
	Image string
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Image, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
