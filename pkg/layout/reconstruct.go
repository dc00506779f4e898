package layout

import (
	"fmt"
	"math"
	"sort"
)

// Strategy selects how boxes are grouped into lines.
type Strategy string

const (
	// Sequential compares each box only with the previously appended one.
	// A slowly sloping line can drift across the threshold without being
	// split, and boxes emitted out of vertical order start new lines.
	Sequential Strategy = "sequential"
	// Clustered joins every pair of boxes whose vertical centres are closer
	// than the threshold, regardless of emission order.
	Clustered Strategy = "clustered"
)

// Options controls line reconstruction.
type Options struct {
	YThreshold     float64
	SortWithinLine bool
	Strategy       Strategy
}

// DefaultOptions matches the detector+recognizer pipeline settings.
func DefaultOptions() Options {
	return Options{YThreshold: 13, SortWithinLine: true, Strategy: Sequential}
}

// Line is one reconstructed text line.
type Line struct {
	Boxes []Box
	Texts []string
}

// GroupAndOrder reorders parallel box/text sequences from engine emission
// order into reading order: top-to-bottom lines, left-to-right within a line
// when opt.SortWithinLine is set.
func GroupAndOrder(boxes []Box, texts []string, opt Options) ([]Box, []string, error) {
	if len(boxes) != len(texts) {
		return nil, nil, fmt.Errorf("%d boxes for %d texts: %w", len(boxes), len(texts), ErrInvalidArgument)
	}
	order, err := ReadingOrder(boxes, opt)
	if err != nil {
		return nil, nil, err
	}
	outBoxes := make([]Box, len(order))
	outTexts := make([]string, len(order))
	for i, idx := range order {
		outBoxes[i] = boxes[idx]
		outTexts[i] = texts[idx]
	}
	return outBoxes, outTexts, nil
}

// GroupLines returns the reconstructed lines without flattening them.
func GroupLines(boxes []Box, texts []string, opt Options) ([]Line, error) {
	if len(boxes) != len(texts) {
		return nil, fmt.Errorf("%d boxes for %d texts: %w", len(boxes), len(texts), ErrInvalidArgument)
	}
	groups, err := lineIndices(boxes, opt)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(groups))
	for _, g := range groups {
		ln := Line{Boxes: make([]Box, 0, len(g)), Texts: make([]string, 0, len(g))}
		for _, idx := range g {
			ln.Boxes = append(ln.Boxes, boxes[idx])
			ln.Texts = append(ln.Texts, texts[idx])
		}
		lines = append(lines, ln)
	}
	return lines, nil
}

// ReadingOrder returns the permutation of input indices in reading order.
// Callers carrying more than text per box (confidences, ids) use it to
// reorder their own slices.
func ReadingOrder(boxes []Box, opt Options) ([]int, error) {
	groups, err := lineIndices(boxes, opt)
	if err != nil {
		return nil, err
	}
	order := make([]int, 0, len(boxes))
	for _, g := range groups {
		order = append(order, g...)
	}
	return order, nil
}

func lineIndices(boxes []Box, opt Options) ([][]int, error) {
	if math.IsNaN(opt.YThreshold) {
		return nil, fmt.Errorf("line threshold is NaN: %w", ErrInvalidArgument)
	}
	centers := make([][2]float64, len(boxes))
	for i, b := range boxes {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		x, y := b.Center()
		centers[i] = [2]float64{x, y}
	}

	var groups [][]int
	switch opt.Strategy {
	case Sequential, "":
		groups = sequentialLines(centers, opt.YThreshold)
	case Clustered:
		groups = clusteredLines(centers, opt.YThreshold)
	default:
		return nil, fmt.Errorf("unknown line strategy %q: %w", opt.Strategy, ErrInvalidArgument)
	}
	if opt.SortWithinLine {
		for _, g := range groups {
			sort.SliceStable(g, func(a, b int) bool {
				return centers[g[a]][0] < centers[g[b]][0]
			})
		}
	}
	return groups, nil
}

func sequentialLines(centers [][2]float64, threshold float64) [][]int {
	var groups [][]int
	var cur []int
	var prevY float64
	for i, c := range centers {
		cy := c[1]
		switch {
		case len(cur) == 0:
			cur = []int{i}
		case math.Abs(cy-prevY) < threshold:
			cur = append(cur, i)
		default:
			groups = append(groups, cur)
			cur = []int{i}
		}
		prevY = cy
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func clusteredLines(centers [][2]float64, threshold float64) [][]int {
	parent := make([]int, len(centers))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range centers {
		for j := i + 1; j < len(centers); j++ {
			if math.Abs(centers[i][1]-centers[j][1]) < threshold {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	byRoot := map[int]int{}
	var groups [][]int
	for i := range centers {
		r := find(i)
		gi, ok := byRoot[r]
		if !ok {
			gi = len(groups)
			byRoot[r] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], i)
	}

	top := func(g []int) float64 {
		m := math.Inf(1)
		for _, i := range g {
			m = math.Min(m, centers[i][1])
		}
		return m
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return top(groups[a]) < top(groups[b])
	})
	return groups
}
