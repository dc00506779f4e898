package config

import (
	"context"
	"fmt"

	"ieltsocr/pkg/ocr"
)

// Engines builds every engine the settings allow, the configured default
// first. A Document AI engine that cannot be created is reported in
// skipped unless it is the default, in which case it is an error. The
// returned close function releases engine clients.
func (c *Config) Engines(ctx context.Context) (engines []ocr.Engine, skipped []error, closeFn func(), err error) {
	var closers []func() error
	closeFn = func() {
		for _, fn := range closers {
			_ = fn()
		}
	}

	tess := c.TesseractOptions()
	all := map[string]ocr.Engine{
		ocr.EngineTesseract: ocr.NewTesseractEngine(tess),
		ocr.EngineHOCR:      ocr.NewHOCREngine(tess),
	}
	if docOpt := c.DocumentAIOptions(); docOpt.Enabled() {
		docEngine, derr := ocr.NewDocumentAIEngine(ctx, docOpt)
		if derr != nil {
			if c.OCR.Engine == ocr.EngineDocumentAI {
				return nil, nil, closeFn, derr
			}
			skipped = append(skipped, derr)
		} else {
			all[ocr.EngineDocumentAI] = docEngine
			closers = append(closers, docEngine.Close)
		}
	}

	def, ok := all[c.OCR.Engine]
	if !ok {
		closeFn()
		return nil, nil, func() {}, fmt.Errorf("default engine %q: %w", c.OCR.Engine, ocr.ErrEngineUnavailable)
	}
	engines = append(engines, def)
	for _, name := range []string{ocr.EngineTesseract, ocr.EngineHOCR, ocr.EngineDocumentAI} {
		if e, ok := all[name]; ok && name != c.OCR.Engine {
			engines = append(engines, e)
		}
	}
	return engines, skipped, closeFn, nil
}
