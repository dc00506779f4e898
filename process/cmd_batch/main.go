package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ieltsocr/pkg/config"
	"ieltsocr/pkg/logging"
	"ieltsocr/pkg/ocr"
	"ieltsocr/process/batch"
)

func main() {
	dir := flag.String("dir", "images", "folder of certificate images")
	out := flag.String("out", batch.DefaultOut, "flat JSON dump to write")
	engine := flag.String("engine", "", "OCR engine (default from config)")
	watch := flag.Bool("watch", false, "keep running and process new images")
	move := flag.Bool("move-processed", false, "move handled images to <dir>/processed")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engines, skipped, closeEngines, err := cfg.Engines(ctx)
	if err != nil {
		log.Fatalw("engine setup failed", "error", err)
	}
	defer closeEngines()
	for _, e := range skipped {
		log.Warnw("engine disabled", "error", e)
	}

	proc := ocr.NewProcessor(cfg.ProcessorOptions(filepath.Join(*dir, "annotated")), log.Named("ocr"), engines...)
	r := batch.NewRunner(proc, batch.Options{Dir: *dir, Out: *out, Engine: *engine, MoveProcessed: *move}, log)

	if *watch {
		if err := r.Watch(ctx); err != nil {
			log.Fatalw("watch failed", "dir", *dir, "error", err)
		}
		return
	}
	results, err := r.Run(ctx)
	if err != nil {
		log.Fatalw("batch failed", "dir", *dir, "error", err)
	}
	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		log.Fatalw("encode results failed", "error", err)
	}
	fmt.Println(string(data))
}
