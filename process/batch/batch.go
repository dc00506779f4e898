// Package batch runs the OCR pipeline over a folder of certificate images
// and maintains a flat JSON dump of the extracted fields.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/ocr"
)

// DefaultOut is the dump written when no output path is given.
const DefaultOut = "output.json"

// Options configures a Runner.
type Options struct {
	Dir    string
	Out    string
	Engine string
	// MoveProcessed moves every handled image into <Dir>/processed.
	MoveProcessed bool
	// Debounce is how long a watched file must stay quiet before it is processed.
	Debounce time.Duration
}

// Runner processes a folder and keeps the accumulated results.
type Runner struct {
	proc *ocr.Processor
	opt  Options
	log  *zap.SugaredLogger

	mu      sync.Mutex
	results map[string]certificate.Fields
}

func NewRunner(proc *ocr.Processor, opt Options, log *zap.SugaredLogger) *Runner {
	if opt.Out == "" {
		opt.Out = DefaultOut
	}
	if opt.Debounce <= 0 {
		opt.Debounce = 300 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{proc: proc, opt: opt, log: log, results: map[string]certificate.Fields{}}
}

// Results returns a copy of everything processed so far, keyed by image path.
func (r *Runner) Results() map[string]certificate.Fields {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]certificate.Fields, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

// Run processes every image currently in the folder and writes the dump.
func (r *Runner) Run(ctx context.Context) (map[string]certificate.Fields, error) {
	names, err := ListImages(r.opt.Dir)
	if err != nil {
		return nil, err
	}
	if err := r.process(ctx, names); err != nil {
		return nil, err
	}
	return r.Results(), nil
}

func (r *Runner) process(ctx context.Context, names []string) error {
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(r.opt.Dir, n)
	}
	results, err := r.proc.ProcessBatch(ctx, r.opt.Engine, paths)
	if results == nil && err != nil {
		return err
	}

	r.mu.Lock()
	for k, v := range ocr.FlatResults(results) {
		r.results[k] = v
	}
	r.mu.Unlock()
	if werr := WriteDump(r.opt.Out, r.Results()); werr != nil {
		return werr
	}
	r.log.Infow("batch written", "dir", r.opt.Dir, "images", len(results), "out", r.opt.Out)

	if r.opt.MoveProcessed {
		for _, res := range results {
			if res.Failed() {
				continue
			}
			if _, merr := moveToProcessed(res.Image); merr != nil {
				r.log.Warnw("move to processed failed", "image", res.Image, "error", merr)
			}
		}
	}
	return err
}

// Watch runs once over the folder and then keeps processing images that
// are created or rewritten, until ctx is done.
func (r *Runner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.opt.Dir); err != nil {
		return err
	}
	if _, err := r.Run(ctx); err != nil {
		return err
	}
	r.log.Infow("watching", "dir", r.opt.Dir, "debounce", r.opt.Debounce)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(r.opt.Debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isCandidate(name) {
				continue
			}
			pending[name] = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warnw("watch error", "error", err)
		case <-ticker.C:
			now := time.Now()
			var ready []string
			for name, t := range pending {
				if now.Sub(t) >= r.opt.Debounce {
					ready = append(ready, name)
					delete(pending, name)
				}
			}
			if len(ready) == 0 {
				continue
			}
			sort.Strings(ready)
			ready = existing(r.opt.Dir, ready)
			if len(ready) == 0 {
				continue
			}
			if err := r.process(ctx, ready); err != nil && ctx.Err() == nil {
				r.log.Errorw("processing watched files failed", "files", ready, "error", err)
			}
		}
	}
}

func existing(dir string, names []string) []string {
	out := names[:0]
	for _, n := range names {
		if st, err := os.Stat(filepath.Join(dir, n)); err == nil && !st.IsDir() {
			out = append(out, n)
		}
	}
	return out
}

// isCandidate skips files the pipeline writes itself.
func isCandidate(name string) bool {
	return ocr.IsImage(name) && !strings.Contains(name, ".annotated.")
}

// ListImages returns the png/jpg/jpeg file names in dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isCandidate(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// WriteDump writes the flat results as indented JSON.
func WriteDump(path string, results map[string]certificate.Fields) error {
	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	return nil
}

// moveToProcessed moves an image into the processed folder beside it.
func moveToProcessed(src string) (string, error) {
	processedDir := filepath.Join(filepath.Dir(src), "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(processedDir, filepath.Base(src))
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	// fallback: copy then remove
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, os.Remove(src)
}
