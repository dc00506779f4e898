package main

import (
	"flag"
	"fmt"
	"os"

	"ieltsocr/process/batch"
	"ieltsocr/process/report"
)

func main() {
	in := flag.String("in", batch.DefaultOut, "flat JSON dump to summarise")
	list := flag.Bool("list", false, "list one line per image")
	flag.Parse()

	flat, err := report.Load(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	report.Print(os.Stdout, flat, *list)
}
