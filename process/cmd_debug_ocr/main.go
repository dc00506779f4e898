package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/config"
	"ieltsocr/pkg/ocr"
)

func main() {
	f := flag.String("file", "", "image file to OCR")
	engineName := flag.String("engine", "", "OCR engine (default from config)")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	engines, _, closeEngines, err := cfg.Engines(ctx)
	if err != nil {
		log.Fatalf("engines: %v", err)
	}
	defer closeEngines()
	proc := ocr.NewProcessor(cfg.ProcessorOptions(""), nil, engines...)

	eng, err := proc.Engine(*engineName)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	rec, err := eng.Recognize(ctx, *f)
	if err != nil {
		log.Fatalf("ocr error: %v", err)
	}
	fmt.Printf("engine=%s tokens=%d ordered=%v\n", eng.Name(), len(rec.Tokens), rec.Ordered)
	for i, t := range rec.Tokens {
		fmt.Printf("raw %3d %q box=%v\n", i, t.Text, t.Box)
	}
	ordered := rec.Tokens
	if !rec.Ordered {
		ordered, err = ocr.Reorder(rec.Tokens, cfg.LayoutOptions())
		if err != nil {
			log.Fatalf("reorder: %v", err)
		}
		for i, t := range ordered {
			fmt.Printf("ord %3d %q\n", i, t.Text)
		}
	}
	if rec.Words {
		for i, t := range ocr.MergePhrases(ordered, cfg.OCR.MergeGap) {
			fmt.Printf("phr %3d %q\n", i, t.Text)
		}
	}

	res, err := proc.ProcessImage(ctx, eng.Name(), *f)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	for _, label := range certificate.Labels {
		if v, ok := res.Fields[label]; ok {
			fmt.Printf("%s=%q\n", label, v)
		}
	}
}
