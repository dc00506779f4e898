package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"ieltsocr/pkg/layout"
)

// HOCREngine runs a single tesseract hOCR pass and keeps the words in the
// order tesseract writes them: block by block, line by line. That order is
// treated as reading order, so no line reconstruction is applied; the
// words are joined into phrases downstream.
type HOCREngine struct {
	opt TesseractOptions
}

func NewHOCREngine(opt TesseractOptions) *HOCREngine {
	return &HOCREngine{opt: opt}
}

func (e *HOCREngine) Name() string { return EngineHOCR }

func (e *HOCREngine) Recognize(ctx context.Context, path string) (*Recognition, error) {
	return runBlocking(ctx, func() (*Recognition, error) {
		client, err := e.opt.newClient(path)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		out, err := client.HOCRText()
		if err != nil {
			return nil, fmt.Errorf("tesseract hocr: %w", err)
		}
		tokens, err := ParseHOCRWords([]byte(out))
		if err != nil {
			return nil, err
		}
		return &Recognition{Tokens: tokens, Ordered: true, Words: true}, nil
	})
}

// ParseHOCRWords returns every ocrx_word element of an hOCR document in
// document order. Words without text are skipped; a missing or malformed
// bbox leaves Box nil and a missing x_wconf leaves Confidence nil.
func ParseHOCRWords(data []byte) ([]Token, error) {
	if declaredCharset(data) == "iso-8859-1" {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode hocr: %w", err)
		}
		data = decoded
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}

	var tokens []Token
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocrx_word") {
			if tok, ok := wordToken(n); ok {
				tokens = append(tokens, tok)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tokens, nil
}

func declaredCharset(data []byte) string {
	low := strings.ToLower(string(data))
	i := strings.Index(low, "charset=")
	if i < 0 {
		return "utf-8"
	}
	rest := low[i+len("charset="):]
	fields := strings.FieldsFunc(rest, func(r rune) bool {
		return r == '"' || r == ';' || r == '\'' || r == '>' || r == ' ' || r == '/'
	})
	if len(fields) == 0 {
		return "utf-8"
	}
	switch fields[0] {
	case "iso-8859-1", "latin1", "latin-1":
		return "iso-8859-1"
	}
	return fields[0]
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func wordToken(n *html.Node) (Token, bool) {
	text := strings.TrimSpace(nodeText(n))
	if text == "" {
		return Token{}, false
	}
	tok := Token{Text: text}
	props := parseTitle(attr(n, "title"))
	if bbox := props["bbox"]; len(bbox) == 4 {
		var coords [4]float64
		ok := true
		for i, v := range bbox {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				ok = false
				break
			}
			coords[i] = f
		}
		if ok {
			if box, err := layout.NewBox(coords[0], coords[1], coords[2], coords[3]); err == nil {
				tok.Box = &box
			}
		}
	}
	if conf := props["x_wconf"]; len(conf) == 1 {
		if f, err := strconv.ParseFloat(conf[0], 64); err == nil {
			tok.Confidence = confidence(f / 100)
		}
	}
	return tok, true
}

// parseTitle splits "bbox 1 2 3 4; x_wconf 95" into its properties.
func parseTitle(title string) map[string][]string {
	out := map[string][]string{}
	for _, part := range strings.Split(title, ";") {
		items := strings.Fields(part)
		if len(items) > 0 {
			out[items[0]] = items[1:]
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
