package ocr

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/layout"
)

type fakeEngine struct {
	name    string
	ordered bool
	words   bool
	pages   map[string][]Token
	fail    map[string]error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, path string) (*Recognition, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := filepath.Base(path)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return &Recognition{Tokens: f.pages[key], Ordered: f.ordered, Words: f.words}, nil
}

func word(text string, x, y float64) Token {
	b := layout.Box{XMin: x - 5, YMin: y - 5, XMax: x + 5, YMax: y + 5}
	return Token{Text: text, Box: &b}
}

func orderedTokens(texts ...string) []Token {
	out := make([]Token, len(texts))
	for i, t := range texts {
		out[i] = Token{Text: t}
	}
	return out
}

func newTestProcessor(opt Options, engines ...Engine) *Processor {
	return NewProcessor(opt, zap.NewNop().Sugar(), engines...)
}

func TestProcessImageReordersUnorderedEngine(t *testing.T) {
	// Words arrive right-to-left within each row.
	eng := &fakeEngine{name: "words", pages: map[string][]Token{
		"cert.png": {
			word("SMITH", 80, 40), word("Family Name", 20, 41),
			word("JOHN", 80, 10), word("First Name", 20, 11),
		},
	}}
	p := newTestProcessor(DefaultOptions(), eng)

	res, err := p.ProcessImage(context.Background(), "words", "cert.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"Family Name", "SMITH", "First Name", "JOHN"}, Texts(res.Tokens))
	assert.Equal(t, certificate.Fields{
		certificate.LabelFamilyName: "SMITH",
		certificate.LabelFirstName:  "JOHN",
	}, res.Fields)
	assert.False(t, res.Failed())
}

func TestProcessImageKeepsOrderedEngineOrder(t *testing.T) {
	eng := &fakeEngine{name: "lines", ordered: true, pages: map[string][]Token{
		"cert.png": orderedTokens("Candidate ID", "AB123", "Date", "01/02/2020"),
	}}
	p := newTestProcessor(DefaultOptions(), eng)

	res, err := p.ProcessImage(context.Background(), "", "cert.png")
	require.NoError(t, err)
	assert.Equal(t, "lines", res.Engine)
	assert.Equal(t, "AB123", res.Fields[certificate.LabelCandidateID])
	assert.Equal(t, "01/02/2020", res.Fields[certificate.LabelIssueDate])
}

func TestProcessImageStages(t *testing.T) {
	boom := errors.New("engine exploded")
	eng := &fakeEngine{
		name: "words",
		pages: map[string][]Token{
			"nobox.png": {{Text: "Family"}},
			"last.png":  {word("x", 1, 1), word("Family Name", 30, 1)},
		},
		fail: map[string]error{"bad.png": boom},
	}
	p := newTestProcessor(DefaultOptions(), eng)

	cases := []struct {
		image string
		stage Stage
		cause error
	}{
		{"bad.png", StageRecognize, boom},
		{"nobox.png", StageReorder, ErrMissingBox},
		{"last.png", StageExtract, certificate.ErrIndexOutOfRange},
	}
	for _, tc := range cases {
		res, err := p.ProcessImage(context.Background(), "words", tc.image)
		var perr *ProcessingError
		require.ErrorAs(t, err, &perr, tc.image)
		assert.Equal(t, tc.stage, perr.Stage, tc.image)
		assert.ErrorIs(t, err, tc.cause, tc.image)
		assert.True(t, res.Failed())
		assert.Empty(t, res.Fields)
		assert.Contains(t, res.Error, string(tc.stage))
	}
}

func TestProcessImageUnknownEngine(t *testing.T) {
	p := newTestProcessor(DefaultOptions(), &fakeEngine{name: "words"})
	_, err := p.ProcessImage(context.Background(), "paddle", "a.png")
	assert.ErrorIs(t, err, ErrUnknownEngine)

	_, err = p.ProcessBatch(context.Background(), "paddle", []string{"a.png"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestProcessImageTimeout(t *testing.T) {
	eng := &fakeEngine{name: "slow", ordered: true, delay: time.Second}
	opt := DefaultOptions()
	opt.Timeout = 10 * time.Millisecond
	p := newTestProcessor(opt, eng)

	_, err := p.ProcessImage(context.Background(), "slow", "a.png")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	eng := &fakeEngine{
		name:    "lines",
		ordered: true,
		pages: map[string][]Token{
			"1.png": orderedTokens("Band", "7.5"),
			"3.png": orderedTokens("Sex (M/F)", "M"),
		},
		fail: map[string]error{"2.png": errors.New("unreadable")},
	}
	opt := DefaultOptions()
	opt.Workers = 3
	p := newTestProcessor(opt, eng)

	paths := []string{"1.png", "2.png", "3.png"}
	results, err := p.ProcessBatch(context.Background(), "lines", paths)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, paths[i], r.Image, "input order")
	}
	assert.True(t, results[1].Failed())

	want := map[string]certificate.Fields{
		"1.png": {certificate.LabelBand: "7.5"},
		"2.png": {},
		"3.png": {certificate.LabelSex: "M"},
	}
	if diff := cmp.Diff(want, FlatResults(results)); diff != "" {
		t.Fatalf("flat results mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	eng := &fakeEngine{name: "lines", ordered: true}
	p := newTestProcessor(DefaultOptions(), eng)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ProcessBatch(ctx, "lines", []string{"a.png", "b.png"})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Failed())
	}
	assert.Zero(t, eng.calls.Load())
}

func TestProcessImageAnnotates(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cert.png")
	require.NoError(t, imaging.Save(imaging.New(120, 80, color.White), src))

	eng := &fakeEngine{name: "words", pages: map[string][]Token{
		"cert.png": {word("Band", 20, 30), word("8.0", 70, 30)},
	}}
	opt := DefaultOptions()
	opt.Annotate = true
	opt.AnnotateDir = filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(opt.AnnotateDir, 0o755))
	p := newTestProcessor(opt, eng)

	res, err := p.ProcessImage(context.Background(), "words", src)
	require.NoError(t, err)
	assert.Equal(t, "8.0", res.Fields[certificate.LabelBand])
	assert.Equal(t, filepath.Join(dir, "out", "cert.png.annotated.png"), res.Annotated)

	img, err := imaging.Open(res.Annotated)
	require.NoError(t, err)
	// top-left corner of the first box is stroked
	r, g, b, _ := img.At(15, 25).RGBA()
	assert.Equal(t, [3]uint32{0, 200 * 257, 0}, [3]uint32{r, g, b})
}

func TestProcessorRegistry(t *testing.T) {
	p := newTestProcessor(DefaultOptions(), &fakeEngine{name: "b"}, &fakeEngine{name: "a"})
	assert.Equal(t, []string{"b", "a"}, p.Engines())
	assert.Equal(t, "b", p.DefaultEngine())
	p.Register(&fakeEngine{name: "b"})
	assert.Equal(t, []string{"b", "a"}, p.Engines())

	empty := newTestProcessor(DefaultOptions())
	assert.Equal(t, "", empty.DefaultEngine())
	_, err := empty.Engine("")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestReorderNeedsBoxes(t *testing.T) {
	_, err := Reorder([]Token{{Text: "a"}}, layout.DefaultOptions())
	assert.ErrorIs(t, err, ErrMissingBox)

	out, err := Reorder(nil, layout.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAnnotatedName(t *testing.T) {
	assert.Equal(t, "scan.JPG.annotated.png", AnnotatedName("/tmp/x/scan.JPG"))
	assert.NotEqual(t, AnnotatedName("a.png"), AnnotatedName("a.jpg"))
	assert.NotEqual(t, AnnotatedName("x.png"), AnnotatedName("x.annotated.png"))
}

// certificateWords lays out a certificate the way a word-level engine
// reports it: one token per word, rows emitted top to bottom with the
// words of each row in reverse.
func certificateWords() []Token {
	rows := [][]string{
		{"Date", "", "", "12/01/2020"},
		{"Family", "Name", "", "SMITH"},
		{"First", "Name", "", "JOHN"},
		{"Candidate", "ID", "", "AB123"},
		{"Date", "of", "Birth", "01/02/2003"},
		{"Sex", "(M/F)", "", "M"},
		{"Band", "", "", "7.5"},
		{"Date", "", "", "15/01/2020"},
	}
	// label words 14px apart, values in a column far to the right
	xs := []float64{20, 34, 48, 150}
	var out []Token
	for r, row := range rows {
		y := 10 + 20*float64(r)
		for c := len(row) - 1; c >= 0; c-- {
			if row[c] != "" {
				out = append(out, word(row[c], xs[c], y))
			}
		}
	}
	return out
}

func TestProcessImageJoinsSplitLabels(t *testing.T) {
	eng := &fakeEngine{name: "words", words: true, pages: map[string][]Token{
		"cert.png": certificateWords(),
	}}
	p := newTestProcessor(DefaultOptions(), eng)

	res, err := p.ProcessImage(context.Background(), "words", "cert.png")
	require.NoError(t, err)
	want := certificate.Fields{
		certificate.LabelDate:        "12/01/2020",
		certificate.LabelFamilyName:  "SMITH",
		certificate.LabelFirstName:   "JOHN",
		certificate.LabelCandidateID: "AB123",
		certificate.LabelDateOfBirth: "01/02/2003",
		certificate.LabelSex:         "M",
		certificate.LabelBand:        "7.5",
		certificate.LabelIssueDate:   "15/01/2020",
	}
	if diff := cmp.Diff(want, res.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, Texts(res.Tokens), "Date of Birth")
	assert.Contains(t, Texts(res.Tokens), "Sex (M/F)")
}

func TestProcessImageWithoutMergingLosesSplitLabels(t *testing.T) {
	eng := &fakeEngine{name: "words", words: true, pages: map[string][]Token{
		"cert.png": certificateWords(),
	}}
	opt := DefaultOptions()
	opt.MergeGap = 0
	p := newTestProcessor(opt, eng)

	res, err := p.ProcessImage(context.Background(), "words", "cert.png")
	require.NoError(t, err)
	assert.NotContains(t, res.Fields, certificate.LabelFamilyName)
	assert.NotContains(t, res.Fields, certificate.LabelDateOfBirth)
	assert.Equal(t, "7.5", res.Fields[certificate.LabelBand])
}

func TestMergePhrases(t *testing.T) {
	hi, lo := 0.9, 0.7
	family := word("Family", 20, 30)
	family.Confidence = &hi
	name := word("Name", 34, 30)
	name.Confidence = &lo
	tokens := []Token{family, name, word("SMITH", 150, 30), {Text: "loose"}, {Text: "words"}}

	got := MergePhrases(tokens, DefaultMergeGap)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"Family Name", "SMITH", "loose", "words"}, Texts(got))
	assert.Equal(t, &layout.Box{XMin: 15, YMin: 25, XMax: 39, YMax: 35}, got[0].Box)
	require.NotNil(t, got[0].Confidence)
	assert.InDelta(t, 0.8, *got[0].Confidence, 1e-9)
	assert.Nil(t, got[2].Confidence)
	// inputs are left untouched
	assert.Equal(t, layout.Box{XMin: 15, YMin: 25, XMax: 25, YMax: 35}, *family.Box)

	assert.Equal(t, tokens, MergePhrases(tokens, 0))
}

func TestProcessBatchAnnotatesSameStem(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "a.jpg"} {
		require.NoError(t, imaging.Save(imaging.New(120, 80, color.White), filepath.Join(dir, name)))
	}
	eng := &fakeEngine{name: "words", pages: map[string][]Token{
		"a.png": {word("Band", 20, 30), word("8.0", 70, 30)},
		"a.jpg": {word("Band", 20, 30), word("6.5", 70, 30)},
	}}
	opt := DefaultOptions()
	opt.Annotate = true
	p := newTestProcessor(opt, eng)

	results, err := p.ProcessBatch(context.Background(), "words",
		[]string{filepath.Join(dir, "a.png"), filepath.Join(dir, "a.jpg")})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].Annotated, results[1].Annotated)
	for _, r := range results {
		assert.FileExists(t, r.Annotated)
	}
}

// cancellingEngine cancels the batch from inside its first call.
type cancellingEngine struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (e *cancellingEngine) Name() string { return "cancelling" }

func (e *cancellingEngine) Recognize(context.Context, string) (*Recognition, error) {
	e.calls.Add(1)
	e.cancel()
	return &Recognition{Tokens: orderedTokens("Band", "7.0"), Ordered: true}, nil
}

func TestProcessBatchStopsQueuedImagesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &cancellingEngine{cancel: cancel}
	opt := DefaultOptions()
	opt.Workers = 1
	p := newTestProcessor(opt, eng)

	results, err := p.ProcessBatch(ctx, "cancelling", []string{"a.png", "b.png", "c.png"})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 3)
	assert.Equal(t, int32(1), eng.calls.Load())
	assert.False(t, results[0].Failed())
	for _, r := range results[1:] {
		assert.True(t, r.Failed(), r.Image)
		assert.Contains(t, r.Error, context.Canceled.Error())
	}
}
