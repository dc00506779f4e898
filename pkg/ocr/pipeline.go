package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/layout"
)

// Options configures a Processor.
type Options struct {
	Layout     layout.Options
	Extract    certificate.Options
	Preprocess PreprocessOptions
	// Timeout bounds recognition of a single image. Zero means no limit.
	Timeout time.Duration
	// Workers is the number of images processed concurrently.
	Workers int
	// MergeGap joins the words of word-level engines into phrases; see
	// MergePhrases. Zero keeps single words.
	MergeGap float64
	// Annotate writes <name>.<ext>.annotated.png next to each image, or into
	// AnnotateDir when set.
	Annotate    bool
	AnnotateDir string
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Layout:     layout.DefaultOptions(),
		Extract:    certificate.DefaultOptions(),
		Preprocess: PreprocessOptions{Mode: PreprocessNone, DarkThreshold: DefaultDarkThreshold},
		Workers:    2,
		MergeGap:   DefaultMergeGap,
	}
}

// Result is the outcome for one image.
type Result struct {
	Image      string             `json:"image"`
	Engine     string             `json:"engine"`
	Fields     certificate.Fields `json:"fields"`
	Tokens     []Token            `json:"tokens,omitempty"`
	Annotated  string             `json:"annotated,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// Failed reports whether the image produced no fields because of an error.
func (r Result) Failed() bool { return r.Error != "" }

// Processor runs images through preprocessing, recognition, line
// reconstruction and field extraction with one of its registered engines.
type Processor struct {
	engines map[string]Engine
	order   []string
	opt     Options
	log     *zap.SugaredLogger
}

// NewProcessor registers engines in the given order; the first one is the default.
func NewProcessor(opt Options, log *zap.SugaredLogger, engines ...Engine) *Processor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opt.Workers < 1 {
		opt.Workers = 1
	}
	p := &Processor{engines: map[string]Engine{}, opt: opt, log: log}
	for _, e := range engines {
		p.Register(e)
	}
	return p
}

// Register adds or replaces an engine under its name.
func (p *Processor) Register(e Engine) {
	if _, ok := p.engines[e.Name()]; !ok {
		p.order = append(p.order, e.Name())
	}
	p.engines[e.Name()] = e
}

// Engines lists the registered engine names in registration order.
func (p *Processor) Engines() []string {
	return append([]string(nil), p.order...)
}

// DefaultEngine is the first registered engine, or "" when there is none.
func (p *Processor) DefaultEngine() string {
	if len(p.order) == 0 {
		return ""
	}
	return p.order[0]
}

// Engine looks up an engine; an empty name selects the default.
func (p *Processor) Engine(name string) (Engine, error) {
	if name == "" {
		name = p.DefaultEngine()
	}
	e, ok := p.engines[name]
	if !ok {
		known := p.Engines()
		sort.Strings(known)
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownEngine, name, strings.Join(known, ", "))
	}
	return e, nil
}

// ProcessImage runs the full pipeline on one image. A failure is returned
// as a *ProcessingError and is also recorded in the result, whose Fields
// are then empty.
func (p *Processor) ProcessImage(ctx context.Context, engine, path string) (Result, error) {
	start := time.Now()
	res := Result{Image: path, Engine: engine, Fields: certificate.Fields{}}
	e, err := p.Engine(engine)
	if err != nil {
		return p.fail(res, start, &ProcessingError{Image: path, Stage: StageRecognize, Err: err})
	}
	res.Engine = e.Name()

	input, err := Preprocess(path, p.opt.Preprocess)
	if err != nil {
		return p.fail(res, start, &ProcessingError{Image: path, Stage: StagePreprocess, Err: err})
	}
	if input != path {
		defer os.Remove(input)
	}

	rctx := ctx
	if p.opt.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, p.opt.Timeout)
		defer cancel()
	}
	rec, err := e.Recognize(rctx, input)
	if err != nil {
		return p.fail(res, start, &ProcessingError{Image: path, Stage: StageRecognize, Err: err})
	}
	tokens := rec.Tokens
	p.log.Debugw("tokens recognised", "image", path, "engine", e.Name(), "count", len(tokens), "text", snippet(joinTexts(tokens), 160))

	if !rec.Ordered {
		tokens, err = Reorder(tokens, p.opt.Layout)
		if err != nil {
			return p.fail(res, start, &ProcessingError{Image: path, Stage: StageReorder, Err: err})
		}
	}
	if rec.Words {
		tokens = MergePhrases(tokens, p.opt.MergeGap)
	}
	res.Tokens = tokens

	fields, err := certificate.Extract(Texts(tokens), p.opt.Extract)
	if err != nil {
		return p.fail(res, start, &ProcessingError{Image: path, Stage: StageExtract, Err: err})
	}
	res.Fields = fields

	if p.opt.Annotate {
		dst := p.annotatedPath(path)
		if err := Annotate(path, dst, tokens); err != nil {
			perr := &ProcessingError{Image: path, Stage: StageAnnotate, Err: err}
			p.log.Warnw("annotation skipped", "image", path, "error", perr)
		} else {
			res.Annotated = dst
		}
	}

	res.DurationMS = time.Since(start).Milliseconds()
	p.log.Infow("image processed", "image", path, "engine", e.Name(), "tokens", len(tokens), "fields", len(fields), "duration_ms", res.DurationMS)
	return res, nil
}

func (p *Processor) fail(res Result, start time.Time, err *ProcessingError) (Result, error) {
	res.Fields = certificate.Fields{}
	res.Error = err.Error()
	res.DurationMS = time.Since(start).Milliseconds()
	p.log.Errorw("image failed", "image", err.Image, "stage", err.Stage, "error", err.Err)
	return res, err
}

// AnnotatedName is the file name used for the annotated copy of an image.
// The source extension is kept so a.png and a.jpg do not share a copy.
func AnnotatedName(path string) string {
	return filepath.Base(path) + ".annotated.png"
}

func (p *Processor) annotatedPath(path string) string {
	dir := p.opt.AnnotateDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, AnnotatedName(path))
}

// ProcessBatch runs every image through ProcessImage with at most Workers
// images in flight. Results are in input order. Per-image failures are
// kept in their results. The returned error reports an unknown engine or a
// done ctx; images not started before ctx ended are marked failed.
func (p *Processor) ProcessBatch(ctx context.Context, engine string, paths []string) ([]Result, error) {
	if _, err := p.Engine(engine); err != nil {
		return nil, err
	}
	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(p.opt.Workers)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			results[i], _ = p.fail(Result{Image: path, Engine: engine}, time.Now(),
				&ProcessingError{Image: path, Stage: StageRecognize, Err: err})
			continue
		}
		g.Go(func() error {
			// the slot may free up only after ctx is done
			if err := ctx.Err(); err != nil {
				results[i], _ = p.fail(Result{Image: path, Engine: engine}, time.Now(),
					&ProcessingError{Image: path, Stage: StageRecognize, Err: err})
				return nil
			}
			results[i], _ = p.ProcessImage(ctx, engine, path)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

// FlatResults maps each image to its fields. Failed images map to an
// empty object.
func FlatResults(results []Result) map[string]certificate.Fields {
	out := make(map[string]certificate.Fields, len(results))
	for _, r := range results {
		if r.Failed() || r.Fields == nil {
			out[r.Image] = certificate.Fields{}
			continue
		}
		out[r.Image] = r.Fields
	}
	return out
}
