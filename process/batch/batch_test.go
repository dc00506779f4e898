package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/ocr"
)

type stubEngine struct{}

func (stubEngine) Name() string { return "stub" }

func (stubEngine) Recognize(_ context.Context, path string) (*ocr.Recognition, error) {
	if filepath.Base(path) == "broken.png" {
		return nil, errors.New("unreadable")
	}
	toks := []ocr.Token{{Text: "Family Name"}, {Text: "SMITH"}, {Text: "Band"}, {Text: "7.5"}}
	return &ocr.Recognition{Tokens: toks, Ordered: true}, nil
}

func newRunner(t *testing.T, dir string, opt Options) *Runner {
	t.Helper()
	proc := ocr.NewProcessor(ocr.DefaultOptions(), nil, stubEngine{})
	opt.Dir = dir
	if opt.Out == "" {
		opt.Out = filepath.Join(t.TempDir(), "output.json")
	}
	return NewRunner(proc, opt, nil)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("img"), 0o644))
	}
}

func readDump(t *testing.T, path string) map[string]certificate.Fields {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]certificate.Fields
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jpg", "a.png", "c.JPEG", "notes.txt", "a.annotated.png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "processed.png"), 0o755))

	got, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.jpg", "c.JPEG"}, got)

	_, err = ListImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRunWritesFlatDump(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.png", "broken.png")
	r := newRunner(t, dir, Options{})

	got, err := r.Run(context.Background())
	require.NoError(t, err)

	want := map[string]certificate.Fields{
		filepath.Join(dir, "one.png"):    {certificate.LabelFamilyName: "SMITH", certificate.LabelBand: "7.5"},
		filepath.Join(dir, "broken.png"): {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, readDump(t, r.opt.Out)); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestRunUnknownEngine(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.png")
	r := newRunner(t, dir, Options{Engine: "nope"})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ocr.ErrUnknownEngine)
}

func TestRunMoveProcessed(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "one.png", "broken.png")
	r := newRunner(t, dir, Options{MoveProcessed: true})

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "processed", "one.png"))
	assert.NoFileExists(t, filepath.Join(dir, "one.png"))
	// failed images stay for a retry
	assert.FileExists(t, filepath.Join(dir, "broken.png"))
}

func TestWatchPicksUpNewImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "first.png")
	r := newRunner(t, dir, Options{Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := r.Results()[filepath.Join(dir, "first.png")]
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	touch(t, dir, "second.jpg", "ignored.annotated.png")
	second := filepath.Join(dir, "second.jpg")
	require.Eventually(t, func() bool {
		_, ok := r.Results()[second]
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	dump := readDump(t, r.opt.Out)
	assert.Equal(t, "SMITH", dump[second][certificate.LabelFamilyName])
	assert.NotContains(t, dump, filepath.Join(dir, "ignored.annotated.png"))
}

func TestMoveToProcessed(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "x.png")
	dst, err := moveToProcessed(filepath.Join(dir, "x.png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "processed", "x.png"), dst)
	assert.FileExists(t, dst)
}
