// Package config loads service settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ieltsocr/pkg/certificate"
	"ieltsocr/pkg/layout"
	"ieltsocr/pkg/ocr"
)

// Config holds every tunable of the server and the batch tools.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	UploadBase  string `yaml:"upload_base"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`

	// Auth is disabled when JWTSecret is empty.
	JWTSecret  string `yaml:"jwt_secret"`
	APIKeyHash string `yaml:"api_key_hash"`

	OCR        OCRConfig        `yaml:"ocr"`
	DocumentAI DocumentAIConfig `yaml:"documentai"`
	Log        LogConfig        `yaml:"log"`
}

type OCRConfig struct {
	Engine  string        `yaml:"engine"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`

	Language    string `yaml:"language"`
	PageSegMode int    `yaml:"page_seg_mode"`
	Blocklist   string `yaml:"blocklist"`

	Preprocess    string `yaml:"preprocess"`
	DarkThreshold int    `yaml:"dark_threshold"`

	LineYThreshold float64 `yaml:"line_y_threshold"`
	SortWithinLine bool    `yaml:"sort_within_line"`
	LineStrategy   string  `yaml:"line_strategy"`
	// MergeGap joins words of the tesseract engines into phrases, in line
	// heights. Zero keeps single words.
	MergeGap float64 `yaml:"merge_gap"`

	ScanStrategy        string  `yaml:"scan_strategy"`
	LenGapThreshold     int     `yaml:"len_gap_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	Annotate bool `yaml:"annotate"`
}

type DocumentAIConfig struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	ProcessorID     string `yaml:"processor_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8081",
		UploadBase:  "uploads",
		MaxUploadMB: 5,
		OCR: OCRConfig{
			Engine:              ocr.EngineTesseract,
			Workers:             2,
			Timeout:             2 * time.Minute,
			Language:            "eng",
			Blocklist:           ocr.DefaultBlocklist,
			Preprocess:          ocr.PreprocessNone,
			DarkThreshold:       ocr.DefaultDarkThreshold,
			LineYThreshold:      13,
			SortWithinLine:      true,
			LineStrategy:        string(layout.Sequential),
			ScanStrategy:        string(certificate.RestartEachLabel),
			LenGapThreshold:     10,
			SimilarityThreshold: 0.6,
			MergeGap:            ocr.DefaultMergeGap,
			Annotate:            true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads .env (without overriding variables already set), then the
// YAML file at path when path is non-empty (CONFIG_FILE otherwise), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnvOrDefault("LISTEN_ADDR", c.ListenAddr)
	c.UploadBase = getEnvOrDefault("UPLOAD_BASE", c.UploadBase)
	c.MaxUploadMB = getEnvAsInt64OrDefault("MAX_UPLOAD_MB", c.MaxUploadMB)
	c.JWTSecret = getEnvOrDefault("JWT_SECRET", c.JWTSecret)
	c.APIKeyHash = getEnvOrDefault("API_KEY_HASH", c.APIKeyHash)

	o := &c.OCR
	o.Engine = getEnvOrDefault("OCR_ENGINE", o.Engine)
	o.Workers = getEnvAsIntOrDefault("OCR_WORKERS", o.Workers)
	o.Timeout = getEnvAsDurationOrDefault("OCR_TIMEOUT", o.Timeout)
	o.Language = getEnvOrDefault("TESSERACT_LANG", o.Language)
	o.PageSegMode = getEnvAsIntOrDefault("TESSERACT_PSM", o.PageSegMode)
	o.Preprocess = getEnvOrDefault("PREPROCESS_MODE", o.Preprocess)
	o.DarkThreshold = getEnvAsIntOrDefault("DARK_THRESHOLD", o.DarkThreshold)
	o.LineYThreshold = getEnvAsFloatOrDefault("LINE_Y_THRESHOLD", o.LineYThreshold)
	o.SortWithinLine = getEnvAsBoolOrDefault("SORT_WITHIN_LINE", o.SortWithinLine)
	o.LineStrategy = getEnvOrDefault("LINE_STRATEGY", o.LineStrategy)
	o.MergeGap = getEnvAsFloatOrDefault("OCR_MERGE_GAP", o.MergeGap)
	o.ScanStrategy = getEnvOrDefault("SCAN_STRATEGY", o.ScanStrategy)
	o.Annotate = getEnvAsBoolOrDefault("OCR_ANNOTATE", o.Annotate)

	d := &c.DocumentAI
	d.ProjectID = getEnvOrDefault("DOCAI_PROJECT_ID", d.ProjectID)
	d.Location = getEnvOrDefault("DOCAI_LOCATION", d.Location)
	d.ProcessorID = getEnvOrDefault("DOCAI_PROCESSOR_ID", d.ProcessorID)
	d.CredentialsFile = getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", d.CredentialsFile)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvAsBoolOrDefault("LOG_DEV", c.Log.Development)
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if c.UploadBase == "" {
		return fmt.Errorf("UPLOAD_BASE is required")
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 100 {
		return fmt.Errorf("MAX_UPLOAD_MB must be between 1 and 100, got %d", c.MaxUploadMB)
	}
	if c.JWTSecret != "" && c.APIKeyHash == "" {
		return fmt.Errorf("API_KEY_HASH is required when JWT_SECRET is set")
	}

	o := c.OCR
	switch o.Engine {
	case ocr.EngineTesseract, ocr.EngineHOCR, ocr.EngineDocumentAI:
	default:
		return fmt.Errorf("OCR_ENGINE must be one of tesseract, hocr, documentai, got %q", o.Engine)
	}
	if o.Engine == ocr.EngineDocumentAI && !c.DocumentAIOptions().Enabled() {
		return fmt.Errorf("OCR_ENGINE documentai needs DOCAI_PROJECT_ID, DOCAI_LOCATION and DOCAI_PROCESSOR_ID")
	}
	if o.Workers < 1 || o.Workers > 64 {
		return fmt.Errorf("OCR_WORKERS must be between 1 and 64, got %d", o.Workers)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("OCR_TIMEOUT must not be negative, got %s", o.Timeout)
	}
	if !ocr.ValidPreprocessMode(o.Preprocess) {
		return fmt.Errorf("PREPROCESS_MODE %q is not supported", o.Preprocess)
	}
	if o.DarkThreshold < 0 || o.DarkThreshold > 255 {
		return fmt.Errorf("DARK_THRESHOLD must be between 0 and 255, got %d", o.DarkThreshold)
	}
	if math.IsNaN(o.LineYThreshold) || math.IsInf(o.LineYThreshold, 0) || o.LineYThreshold < 0 {
		return fmt.Errorf("LINE_Y_THRESHOLD must be a non-negative number, got %v", o.LineYThreshold)
	}
	if math.IsNaN(o.MergeGap) || math.IsInf(o.MergeGap, 0) || o.MergeGap < 0 {
		return fmt.Errorf("OCR_MERGE_GAP must be a non-negative number, got %v", o.MergeGap)
	}
	switch layout.Strategy(o.LineStrategy) {
	case layout.Sequential, layout.Clustered:
	default:
		return fmt.Errorf("LINE_STRATEGY must be sequential or clustered, got %q", o.LineStrategy)
	}
	switch certificate.ScanStrategy(o.ScanStrategy) {
	case certificate.RestartEachLabel, certificate.ContinueFromCursor:
	default:
		return fmt.Errorf("SCAN_STRATEGY must be restart or continue, got %q", o.ScanStrategy)
	}
	if o.LenGapThreshold < 1 {
		return fmt.Errorf("len_gap_threshold must be positive, got %d", o.LenGapThreshold)
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %v", o.SimilarityThreshold)
	}
	return nil
}

// AuthEnabled reports whether protected routes require a token.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// MaxUploadBytes is the per-file upload limit.
func (c *Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }

func (c *Config) LayoutOptions() layout.Options {
	return layout.Options{
		YThreshold:     c.OCR.LineYThreshold,
		SortWithinLine: c.OCR.SortWithinLine,
		Strategy:       layout.Strategy(c.OCR.LineStrategy),
	}
}

func (c *Config) ExtractOptions() certificate.Options {
	return certificate.Options{
		Match: certificate.MatchOptions{
			LenGapThreshold:     c.OCR.LenGapThreshold,
			SimilarityThreshold: c.OCR.SimilarityThreshold,
		},
		Strategy: certificate.ScanStrategy(c.OCR.ScanStrategy),
	}
}

func (c *Config) PreprocessOptions() ocr.PreprocessOptions {
	return ocr.PreprocessOptions{Mode: c.OCR.Preprocess, DarkThreshold: uint8(c.OCR.DarkThreshold)}
}

func (c *Config) TesseractOptions() ocr.TesseractOptions {
	return ocr.TesseractOptions{Language: c.OCR.Language, Blocklist: c.OCR.Blocklist, PageSegMode: c.OCR.PageSegMode}
}

func (c *Config) DocumentAIOptions() ocr.DocumentAIOptions {
	return ocr.DocumentAIOptions{
		ProjectID:       c.DocumentAI.ProjectID,
		Location:        c.DocumentAI.Location,
		ProcessorID:     c.DocumentAI.ProcessorID,
		CredentialsFile: c.DocumentAI.CredentialsFile,
	}
}

// ProcessorOptions assembles the pipeline settings. annotateDir may be empty.
func (c *Config) ProcessorOptions(annotateDir string) ocr.Options {
	return ocr.Options{
		Layout:      c.LayoutOptions(),
		Extract:     c.ExtractOptions(),
		Preprocess:  c.PreprocessOptions(),
		Timeout:     c.OCR.Timeout,
		Workers:     c.OCR.Workers,
		MergeGap:    c.OCR.MergeGap,
		Annotate:    c.OCR.Annotate,
		AnnotateDir: annotateDir,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(getEnvOrDefault(key, ""), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnvOrDefault(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
