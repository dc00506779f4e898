package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ieltsocr/pkg/config"
	"ieltsocr/pkg/logging"
	"ieltsocr/pkg/ocr"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional, CONFIG_FILE also works)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
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
	store, err := newBatchStore(cfg.UploadBase)
	if err != nil {
		log.Fatalw("upload storage unavailable", "error", err)
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	a := &app{
		proc:           ocr.NewProcessor(cfg.ProcessorOptions(""), log.Named("ocr"), engines...),
		store:          store,
		auth:           newAuthService(cfg.JWTSecret, cfg.APIKeyHash),
		maxUploadBytes: cfg.MaxUploadBytes(),
		log:            log,
	}
	r := newRouter(a, logger)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("listening", "addr", cfg.ListenAddr, "engines", a.proc.Engines(), "auth", a.auth.enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("server stopped", "error", err)
	}
}

func newRouter(a *app, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))
	r.MaxMultipartMemory = 32 << 20
	r.SetHTMLTemplate(loadTemplates())
	setupRoutes(r, a)
	return r
}
