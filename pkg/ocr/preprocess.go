package ocr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Preprocess modes.
const (
	PreprocessNone        = "none"
	PreprocessDarkToWhite = "dark-to-white"
	PreprocessBinarize    = "binarize"
	PreprocessAdaptive    = "adaptive"
)

// DefaultDarkThreshold is the grey level below which DarkToWhite whitens a pixel.
const DefaultDarkThreshold = 30

// PreprocessOptions selects the filter applied before recognition.
type PreprocessOptions struct {
	Mode          string
	DarkThreshold uint8
}

// Enabled reports whether Preprocess would change the image.
func (o PreprocessOptions) Enabled() bool {
	return o.Mode != "" && o.Mode != PreprocessNone
}

// ValidPreprocessMode reports whether mode is one of the known modes.
func ValidPreprocessMode(mode string) bool {
	switch mode {
	case "", PreprocessNone, PreprocessDarkToWhite, PreprocessBinarize, PreprocessAdaptive:
		return true
	}
	return false
}

// Preprocess writes the filtered image to a temporary PNG and returns its
// path. The caller removes the file. With mode none it returns path unchanged.
func Preprocess(path string, opt PreprocessOptions) (string, error) {
	if !opt.Enabled() {
		return path, nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	var out image.Image
	switch opt.Mode {
	case PreprocessDarkToWhite:
		out = DarkToWhite(img, opt.DarkThreshold)
	case PreprocessBinarize:
		gray := imaging.Grayscale(img)
		gray = imaging.AdjustContrast(gray, 15)
		out = binarize(gray, 210)
	case PreprocessAdaptive:
		gray := imaging.Grayscale(img)
		gray = imaging.Sharpen(gray, 0.7)
		out = dilate(adaptiveThreshold(gray, 15, 7), 1)
	default:
		return "", fmt.Errorf("unknown preprocess mode %q", opt.Mode)
	}

	tmpFile, err := os.CreateTemp("", "ocr-pre-*.png")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	if err := imaging.Save(out, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("save preprocessed: %w", err)
	}
	return tmp, nil
}

// luma is the BT.601 grey level of a colour, 0..255.
func luma(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	y := (299*r + 587*g + 114*b) / 1000
	return uint8(y >> 8)
}

// DarkToWhite returns a copy of img where every pixel with grey level
// below threshold is white. Other pixels keep their colour.
func DarkToWhite(img image.Image, threshold uint8) *image.NRGBA {
	src := imaging.Clone(img)
	b := src.Bounds()
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			if luma(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}) < threshold {
				src.SetNRGBA(x, y, white)
			}
		}
	}
	return src
}

var filterExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tiff": true}

// FilterReport lists what FilterPath did.
type FilterReport struct {
	Written []string
	Skipped []string
}

// FilterPath applies DarkToWhite to a file or to every image in a
// directory. For a file, out names the destination file; for a directory,
// the destination directory (created when missing). With inplace, or when
// out is empty, inputs are overwritten. Unreadable files in a directory
// are skipped; an unreadable single file is an error.
func FilterPath(in, out string, threshold uint8, inplace bool) (FilterReport, error) {
	var rep FilterReport
	info, err := os.Stat(in)
	if err != nil {
		return rep, err
	}
	if !info.IsDir() {
		dst := out
		if inplace || dst == "" {
			dst = in
		}
		if err := filterFile(in, dst, threshold); err != nil {
			return rep, err
		}
		rep.Written = append(rep.Written, dst)
		return rep, nil
	}

	outDir := out
	if inplace || outDir == "" {
		outDir = in
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return rep, fmt.Errorf("create output dir: %w", err)
	}
	entries, err := os.ReadDir(in)
	if err != nil {
		return rep, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() || !filterExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		src := filepath.Join(in, e.Name())
		dst := filepath.Join(outDir, e.Name())
		if err := filterFile(src, dst, threshold); err != nil {
			var readErr *readError
			if errors.As(err, &readErr) {
				rep.Skipped = append(rep.Skipped, src)
				continue
			}
			return rep, err
		}
		rep.Written = append(rep.Written, dst)
	}
	return rep, nil
}

type readError struct{ err error }

func (e *readError) Error() string { return "read image: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func filterFile(src, dst string, threshold uint8) error {
	img, err := imaging.Open(src)
	if err != nil {
		return &readError{err: err}
	}
	if err := imaging.Save(DarkToWhite(img, threshold), dst); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// binarize performs a simple global threshold on a grayscale image.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v uint8 = 255
			if luma(img.At(x, y)) <= threshold {
				v = 0
			}
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// adaptiveThreshold compares each pixel with the mean of its window,
// using an integral image for the window sums.
func adaptiveThreshold(img image.Image, window int, bias int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	if w == 0 || h == 0 {
		return out
	}
	half := window / 2
	gray := make([]int, w*h)
	ints := make([]int, w*h)
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			v := int(luma(img.At(bounds.Min.X+x, bounds.Min.Y+y)))
			gray[y*w+x] = v
			rowSum += v
			if y == 0 {
				ints[y*w+x] = rowSum
			} else {
				ints[y*w+x] = ints[(y-1)*w+x] + rowSum
			}
		}
	}
	at := func(x, y int) int {
		if x < 0 || y < 0 {
			return 0
		}
		return ints[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(x-half, 0), max(y-half, 0)
			x1, y1 := min(x+half, w-1), min(y+half, h-1)
			sum := at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			th := max(mean-bias, 0)
			if gray[y*w+x] < th {
				out.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return out
}

// dilate grows black pixels into their 4-neighbourhood radius times.
func dilate(img *image.NRGBA, radius int) *image.NRGBA {
	if radius <= 0 {
		return img
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	cur := img
	for r := 0; r < radius; r++ {
		next := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for _, d := range [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					x2, y2 := x+d[0], y+d[1]
					if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
						continue
					}
					if c := cur.NRGBAAt(x2, y2); c.R == 0 && c.G == 0 && c.B == 0 {
						next.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
						break
					}
				}
			}
		}
		cur = next
	}
	return cur
}
