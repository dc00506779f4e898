package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"ieltsocr/pkg/layout"
)

// DefaultBlocklist keeps punctuation that never appears in certificate
// values out of the recogniser's output. Slashes and dots stay allowed
// for dates and band scores.
const DefaultBlocklist = "~`'!@#$%^&*_+-={}[]|;:\"<>,?\\"

// TesseractOptions configures the local tesseract engines.
type TesseractOptions struct {
	Language  string
	Blocklist string
	// PageSegMode is passed to tesseract when positive.
	PageSegMode int
}

// DefaultTesseractOptions returns English with the default blocklist.
func DefaultTesseractOptions() TesseractOptions {
	return TesseractOptions{Language: "eng", Blocklist: DefaultBlocklist}
}

// newClient prepares a gosseract client for one image. The caller closes it.
func (o TesseractOptions) newClient(path string) (*gosseract.Client, error) {
	client := gosseract.NewClient()
	lang := o.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if o.Blocklist != "" {
		if err := client.SetBlacklist(o.Blocklist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set blocklist: %w", err)
		}
	}
	if o.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(o.PageSegMode)); err != nil {
			client.Close()
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if err := client.SetImage(path); err != nil {
		client.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return client, nil
}

// TesseractEngine reports individual words with their boxes and
// confidences. Tesseract's word order follows its own block analysis, so
// the result is marked unordered and gets line-reconstructed downstream,
// then the words are joined into phrases.
type TesseractEngine struct {
	opt TesseractOptions
}

func NewTesseractEngine(opt TesseractOptions) *TesseractEngine {
	return &TesseractEngine{opt: opt}
}

func (e *TesseractEngine) Name() string { return EngineTesseract }

func (e *TesseractEngine) Recognize(ctx context.Context, path string) (*Recognition, error) {
	return runBlocking(ctx, func() (*Recognition, error) {
		client, err := e.opt.newClient(path)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, fmt.Errorf("tesseract words: %w", err)
		}
		return &Recognition{Tokens: tokensFromWords(boxes), Words: true}, nil
	})
}

// tokensFromWords drops blank words and scales tesseract's 0-100 confidence.
func tokensFromWords(words []gosseract.BoundingBox) []Token {
	out := make([]Token, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		box := layout.BoxFromRect(w.Box)
		out = append(out, Token{
			Text:       text,
			Confidence: confidence(w.Confidence / 100),
			Box:        &box,
		})
	}
	return out
}
