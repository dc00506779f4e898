package main

import (
	"flag"
	"fmt"
	"os"

	"ieltsocr/pkg/ocr"
)

func main() {
	input := flag.String("input", "", "image file or folder")
	output := flag.String("output", "", "output file or folder (ignored with -inplace)")
	threshold := flag.Int("threshold", ocr.DefaultDarkThreshold, "luminance below which pixels turn white (0-255)")
	inplace := flag.Bool("inplace", false, "overwrite the input images")
	flag.Parse()

	if *input == "" || (*output == "" && !*inplace) {
		fmt.Fprintln(os.Stderr, "-input and either -output or -inplace are required")
		flag.Usage()
		os.Exit(2)
	}
	if *threshold < 0 || *threshold > 255 {
		fmt.Fprintln(os.Stderr, "-threshold must be within 0..255")
		os.Exit(2)
	}

	rep, err := ocr.FilterPath(*input, *output, uint8(*threshold), *inplace)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, p := range rep.Written {
		fmt.Println("wrote", p)
	}
	for _, p := range rep.Skipped {
		fmt.Fprintln(os.Stderr, "skipped", p)
	}
}
