package ocr

import (
	"context"
	"fmt"
	"strings"

	"ieltsocr/pkg/layout"
)

// Engine names accepted by the processor and the config layer.
const (
	EngineTesseract  = "tesseract"
	EngineHOCR       = "hocr"
	EngineDocumentAI = "documentai"
)

// Token is one piece of recognised text. Confidence (0..1) and Box are
// only set when the engine reports them.
type Token struct {
	Text       string      `json:"text"`
	Confidence *float64    `json:"confidence,omitempty"`
	Box        *layout.Box `json:"box,omitempty"`
}

// Recognition is the output of a single engine invocation on one image.
// Ordered is true when the engine already emits tokens in reading order.
// Words is true when every token is a single word, so multi-word labels
// have to be joined back into phrases.
type Recognition struct {
	Tokens  []Token
	Ordered bool
	Words   bool
}

// Engine turns an image file into tokens.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path string) (*Recognition, error)
}

// Texts returns the token texts in order.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// Reorder puts tokens into reading order using their boxes. Every token
// must carry a box.
func Reorder(tokens []Token, opt layout.Options) ([]Token, error) {
	boxes := make([]layout.Box, len(tokens))
	for i, t := range tokens {
		if t.Box == nil {
			return nil, fmt.Errorf("token %d %q: %w", i, t.Text, ErrMissingBox)
		}
		boxes[i] = *t.Box
	}
	order, err := layout.ReadingOrder(boxes, opt)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(order))
	for i, idx := range order {
		out[i] = tokens[idx]
	}
	return out, nil
}

// DefaultMergeGap is the widest word gap, in line heights, still read as
// a space inside one phrase.
const DefaultMergeGap = 1.0

// MergePhrases joins consecutive tokens in reading order that sit on the
// same line with at most gap line heights between them. The merged token
// has the texts joined by a space, the union box and the mean confidence
// of its words. Tokens without a box are never merged.
func MergePhrases(tokens []Token, gap float64) []Token {
	if gap <= 0 || len(tokens) < 2 {
		return tokens
	}
	out := make([]Token, 0, len(tokens))
	var (
		cur     Token
		last    layout.Box
		texts   []string
		confSum float64
		confN   int
	)
	flush := func() {
		if len(texts) == 0 {
			return
		}
		cur.Text = strings.Join(texts, " ")
		if confN > 0 {
			cur.Confidence = confidence(confSum / float64(confN))
		}
		out = append(out, cur)
		texts = texts[:0]
	}
	for _, t := range tokens {
		if len(texts) > 0 && cur.Box != nil && t.Box != nil && layout.SamePhrase(last, *t.Box, gap) {
			u := cur.Box.Union(*t.Box)
			cur.Box = &u
		} else {
			flush()
			cur = Token{}
			if t.Box != nil {
				b := *t.Box
				cur.Box = &b
			}
			confSum, confN = 0, 0
		}
		texts = append(texts, t.Text)
		if t.Box != nil {
			last = *t.Box
		}
		if t.Confidence != nil {
			confSum += *t.Confidence
			confN++
		}
	}
	flush()
	return out
}

func confidence(v float64) *float64 {
	return &v
}

// runBlocking runs fn on its own goroutine and gives up waiting when ctx is
// done. The OCR libraries cannot be interrupted, so fn keeps ownership of
// its resources and releases them itself.
func runBlocking(ctx context.Context, fn func() (*Recognition, error)) (*Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		rec *Recognition
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := fn()
		done <- result{rec, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.rec, r.err
	}
}
