// Package report summarises a flat results dump.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"ieltsocr/pkg/certificate"
)

// Summary counts how often each label was found across a dump.
type Summary struct {
	Images   int
	Empty    int
	Coverage map[string]int
}

// Load reads a dump written by the batch runner.
func Load(path string) (map[string]certificate.Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var flat map[string]certificate.Fields
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return flat, nil
}

func Summarize(flat map[string]certificate.Fields) Summary {
	s := Summary{Images: len(flat), Coverage: make(map[string]int, len(certificate.Labels))}
	for _, label := range certificate.Labels {
		s.Coverage[label] = 0
	}
	for _, f := range flat {
		if len(f) == 0 {
			s.Empty++
			continue
		}
		for label, v := range f {
			if v != "" {
				s.Coverage[label]++
			}
		}
	}
	return s
}

// Print writes the summary and, when list is set, one line per image.
func Print(w io.Writer, flat map[string]certificate.Fields, list bool) {
	s := Summarize(flat)
	fmt.Fprintf(w, "images=%d empty=%d\n", s.Images, s.Empty)
	for _, label := range certificate.Labels {
		pct := 0.0
		if s.Images > 0 {
			pct = 100 * float64(s.Coverage[label]) / float64(s.Images)
		}
		fmt.Fprintf(w, "  %-14s %4d  %5.1f%%\n", label, s.Coverage[label], pct)
	}
	if !list {
		return
	}
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := flat[name]
		fmt.Fprintf(w, "%s|%s|%s|%s\n", name, f.FullName(), f[certificate.LabelCandidateID], f[certificate.LabelBand])
	}
}
