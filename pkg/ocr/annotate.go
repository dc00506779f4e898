package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	labelColor = color.NRGBA{R: 220, G: 0, B: 0, A: 255}
)

// Annotate draws every boxed token onto a copy of the image at src and
// saves it to dst. Each box is outlined and labelled with its text.
func Annotate(src, dst string, tokens []Token) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	canvas := AnnotateImage(img, tokens)
	if err := imaging.Save(canvas, dst); err != nil {
		return fmt.Errorf("save annotated: %w", err)
	}
	return nil
}

// AnnotateImage is Annotate on a decoded image.
func AnnotateImage(img image.Image, tokens []Token) *image.NRGBA {
	canvas := imaging.Clone(img)
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: canvas, Src: image.NewUniform(labelColor), Face: face}
	for _, t := range tokens {
		if t.Box == nil {
			continue
		}
		r := t.Box.Rect().Intersect(canvas.Bounds())
		if r.Empty() {
			continue
		}
		strokeRect(canvas, r, 2)
		y := r.Min.Y - 2
		if y-face.Ascent < 0 {
			y = r.Max.Y + face.Ascent
		}
		d.Dot = fixed.P(r.Min.X, y)
		d.DrawString(t.Text)
	}
	return canvas
}

func strokeRect(dst draw.Image, r image.Rectangle, width int) {
	src := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
