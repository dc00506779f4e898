package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"ieltsocr/pkg/layout"
)

// DocumentAIOptions identifies a Document AI OCR processor.
type DocumentAIOptions struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

// Enabled reports whether enough settings are present to build a client.
func (o DocumentAIOptions) Enabled() bool {
	return o.ProjectID != "" && o.Location != "" && o.ProcessorID != ""
}

func (o DocumentAIOptions) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", o.ProjectID, o.Location, o.ProcessorID)
}

// DocumentAIEngine sends images to a Google Document AI OCR processor and
// returns its detected lines. Lines come back in reading order.
type DocumentAIEngine struct {
	opt    DocumentAIOptions
	client *documentai.DocumentProcessorClient
}

// NewDocumentAIEngine dials the regional endpoint once; Close releases it.
func NewDocumentAIEngine(ctx context.Context, opt DocumentAIOptions) (*DocumentAIEngine, error) {
	if !opt.Enabled() {
		return nil, fmt.Errorf("document ai needs project, location and processor: %w", ErrEngineUnavailable)
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", opt.Location)),
	}
	if opt.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(opt.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai client: %w: %v", ErrEngineUnavailable, err)
	}
	return &DocumentAIEngine{opt: opt, client: client}, nil
}

func (e *DocumentAIEngine) Name() string { return EngineDocumentAI }

func (e *DocumentAIEngine) Close() error {
	return e.client.Close()
}

func (e *DocumentAIEngine) Recognize(ctx context.Context, path string) (*Recognition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	req := &documentaipb.ProcessRequest{
		Name: e.opt.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType(path),
			},
		},
		SkipHumanReview: true,
	}
	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}
	return &Recognition{Tokens: tokensFromDocument(resp.GetDocument()), Ordered: true}, nil
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".pdf":
		return "application/pdf"
	}
	return "image/png"
}

// tokensFromDocument flattens the lines of every page into tokens. Pixel
// vertices are used when present, otherwise normalised vertices are scaled
// by the page dimension.
func tokensFromDocument(doc *documentaipb.Document) []Token {
	if doc == nil {
		return nil
	}
	var out []Token
	for _, page := range doc.GetPages() {
		for _, line := range page.GetLines() {
			l := line.GetLayout()
			text := strings.TrimSpace(textFromLayout(l, doc.GetText()))
			if text == "" {
				continue
			}
			tok := Token{Text: text}
			if c := l.GetConfidence(); c > 0 {
				tok.Confidence = confidence(float64(c))
			}
			if box, ok := boxFromPoly(l.GetBoundingPoly(), page.GetDimension()); ok {
				tok.Box = &box
			}
			out = append(out, tok)
		}
	}
	return out
}

func boxFromPoly(poly *documentaipb.BoundingPoly, dim *documentaipb.Document_Page_Dimension) (layout.Box, bool) {
	var pts []layout.Point
	switch {
	case len(poly.GetVertices()) == 4:
		for _, v := range poly.GetVertices() {
			pts = append(pts, layout.Point{X: float64(v.GetX()), Y: float64(v.GetY())})
		}
	case len(poly.GetNormalizedVertices()) == 4 && dim != nil:
		w, h := float64(dim.GetWidth()), float64(dim.GetHeight())
		for _, v := range poly.GetNormalizedVertices() {
			pts = append(pts, layout.Point{X: float64(v.GetX()) * w, Y: float64(v.GetY()) * h})
		}
	default:
		return layout.Box{}, false
	}
	box, err := layout.BoxFromPolygon(pts)
	return box, err == nil
}

// textFromLayout resolves a layout's text anchor against the document text.
func textFromLayout(l *documentaipb.Document_Page_Layout, fullText string) string {
	if l == nil || l.GetTextAnchor() == nil {
		return ""
	}
	runes := []rune(fullText)
	var b strings.Builder
	for _, seg := range l.GetTextAnchor().GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if end > len(runes) {
			end = len(runes)
		}
		if start < 0 {
			start = 0
		}
		if start > end {
			start = end
		}
		b.WriteString(string(runes[start:end]))
	}
	return b.String()
}
