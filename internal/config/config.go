// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// Stage names an independently runnable batch job.
type Stage string

// Batch jobs exposed by the CLI.
const (
	StageCrawl    Stage = "crawl"
	StageProcess  Stage = "process"
	StageAssemble Stage = "assemble"
	StagePublish  Stage = "publish"
	StageRepair   Stage = "repair"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Process  ProcessConfig  `mapstructure:"process"`
	Images   ImageConfig    `mapstructure:"images"`
	Assemble AssembleConfig `mapstructure:"assemble"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Index    IndexConfig    `mapstructure:"index"`
	Repair   RepairConfig   `mapstructure:"repair"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CatalogConfig controls access to the Postgres catalog.
type CatalogConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CrawlConfig governs the listing crawl.
type CrawlConfig struct {
	ListingURL    string        `mapstructure:"listing_url"`
	TableSelector string        `mapstructure:"table_selector"`
	NextSelector  string        `mapstructure:"next_selector"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	QueueDepth    int           `mapstructure:"queue_depth"`
}

// FetchConfig governs document download and registration.
type FetchConfig struct {
	Workers     int           `mapstructure:"workers"`
	Delay       time.Duration `mapstructure:"delay"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBytes    int           `mapstructure:"max_bytes"`
	DownloadDir string        `mapstructure:"download_dir"`
}

// OCRConfig configures the transcription service.
type OCRConfig struct {
	ProjectID         string        `mapstructure:"project_id"`
	Region            string        `mapstructure:"region"`
	Model             string        `mapstructure:"model"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBase         time.Duration `mapstructure:"retry_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ProcessConfig configures the page processor.
type ProcessConfig struct {
	Workers int `mapstructure:"workers"`
	DPI     int `mapstructure:"dpi"`
}

// ImageConfig selects and configures the page image store.
type ImageConfig struct {
	Backend      string `mapstructure:"backend"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	LocalDir     string `mapstructure:"local_dir"`
	PublicBase   string `mapstructure:"public_base"`
	MaxBytes     int    `mapstructure:"max_bytes"`
	StartQuality int    `mapstructure:"start_quality"`
	MinQuality   int    `mapstructure:"min_quality"`
}

// AssembleConfig configures transcript assembly.
type AssembleConfig struct {
	TranscriptDir string `mapstructure:"transcript_dir"`
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// IndexConfig configures the downstream indexing service.
type IndexConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	Workspace string        `mapstructure:"workspace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RepairConfig configures the reconciliation job.
type RepairConfig struct {
	CanonicalBase     string `mapstructure:"canonical_base"`
	TesseractLanguage string `mapstructure:"tesseract_language"`
	ReOCRErrors       bool   `mapstructure:"reocr_errors"`
	BackfillImages    bool   `mapstructure:"backfill_images"`
}

// LoggingConfig toggles zap development features and the file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// envBindings maps config keys to the environment variables that feed them.
var envBindings = map[string]string{
	"catalog.dsn":               "DATABASE_URL",
	"catalog.max_conns":         "DATABASE_MAX_CONNS",
	"crawl.listing_url":         "LISTING_URL",
	"crawl.table_selector":      "LISTING_TABLE_SELECTOR",
	"crawl.next_selector":       "LISTING_NEXT_SELECTOR",
	"crawl.nav_timeout":         "NAV_TIMEOUT",
	"crawl.settle_delay":        "PAGE_SETTLE_DELAY",
	"crawl.queue_depth":         "QUEUE_DEPTH",
	"fetch.workers":             "FETCH_WORKERS",
	"fetch.delay":               "FETCH_DELAY",
	"fetch.user_agent":          "USER_AGENT",
	"fetch.timeout":             "DOWNLOAD_TIMEOUT",
	"fetch.max_bytes":           "DOWNLOAD_MAX_BYTES",
	"fetch.download_dir":        "DOWNLOAD_DIR",
	"ocr.project_id":            "GOOGLE_CLOUD_PROJECT",
	"ocr.region":                "VERTEX_REGION",
	"ocr.model":                 "OCR_MODEL",
	"ocr.max_attempts":          "OCR_MAX_ATTEMPTS",
	"ocr.retry_base":            "OCR_RETRY_BASE",
	"ocr.requests_per_second":   "OCR_REQUESTS_PER_SECOND",
	"process.workers":           "PAGE_WORKERS",
	"process.dpi":               "RENDER_DPI",
	"images.backend":            "IMAGE_BACKEND",
	"images.bucket":             "IMAGE_BUCKET",
	"images.prefix":             "IMAGE_PREFIX",
	"images.local_dir":          "IMAGE_LOCAL_DIR",
	"images.public_base":        "IMAGE_PUBLIC_BASE",
	"images.max_bytes":          "IMAGE_MAX_BYTES",
	"images.start_quality":      "IMAGE_START_QUALITY",
	"images.min_quality":        "IMAGE_MIN_QUALITY",
	"assemble.transcript_dir":   "TRANSCRIPT_DIR",
	"notify.project_id":         "NOTIFY_PROJECT",
	"notify.topic":              "NOTIFY_TOPIC",
	"index.base_url":            "ANYTHING_LLM_BASE_URL",
	"index.token":               "ANYTHING_LLM_AUTHORIZATION",
	"index.workspace":           "ANYTHING_LLM_WORKSPACE",
	"index.timeout":             "ANYTHING_LLM_TIMEOUT",
	"repair.canonical_base":     "CANONICAL_BASE_URL",
	"repair.tesseract_language": "TESSERACT_LANGUAGE",
	"repair.reocr_errors":       "REPAIR_REOCR_ERRORS",
	"repair.backfill_images":    "REPAIR_BACKFILL_IMAGES",
	"logging.development":       "LOG_DEVELOPMENT",
	"logging.file":              "LOG_FILE",
	"metrics.addr":              "METRICS_ADDR",
}

// Load builds a Config from the environment, reading envFile first when it exists.
// An empty envFile means ".env".
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Images.Backend = strings.ToLower(strings.TrimSpace(cfg.Images.Backend))
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.max_conns", 10)
	v.SetDefault("crawl.listing_url", "https://www.archives.gov/research/jfk/release-2025")
	v.SetDefault("crawl.table_selector", "#DataTables_Table_0")
	v.SetDefault("crawl.next_selector", "#DataTables_Table_0_next")
	v.SetDefault("crawl.nav_timeout", "30s")
	v.SetDefault("crawl.settle_delay", "2s")
	v.SetDefault("crawl.queue_depth", 64)
	v.SetDefault("fetch.workers", 3)
	v.SetDefault("fetch.delay", "1s")
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout", "2m")
	v.SetDefault("fetch.max_bytes", 512*1024*1024)
	v.SetDefault("fetch.download_dir", "downloaded-pdfs")
	v.SetDefault("ocr.region", "us-central1")
	v.SetDefault("ocr.model", "gemini-2.0-flash")
	v.SetDefault("ocr.max_attempts", 3)
	v.SetDefault("ocr.retry_base", "1s")
	v.SetDefault("ocr.requests_per_second", 0)
	v.SetDefault("process.workers", 10)
	v.SetDefault("process.dpi", 300)
	v.SetDefault("images.backend", "local")
	v.SetDefault("images.prefix", "pages")
	v.SetDefault("images.local_dir", "page-images")
	v.SetDefault("images.max_bytes", 10_000_000)
	v.SetDefault("images.start_quality", 85)
	v.SetDefault("images.min_quality", 20)
	v.SetDefault("assemble.transcript_dir", "ocr-text")
	v.SetDefault("index.timeout", "2m")
	v.SetDefault("repair.canonical_base", archive.DefaultCanonicalBase)
	v.SetDefault("repair.tesseract_language", "eng")
	v.SetDefault("repair.reocr_errors", true)
	v.SetDefault("repair.backfill_images", true)
	v.SetDefault("logging.development", false)
}

// ValidateFor enforces the values a stage cannot run without.
// Every problem is reported, not only the first.
func (c Config) ValidateFor(stage Stage) error {
	var errs []error
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	require(c.Catalog.DSN != "", "DATABASE_URL must be set")

	switch stage {
	case StageCrawl:
		require(c.Crawl.ListingURL != "", "LISTING_URL must be set")
		require(c.Crawl.TableSelector != "", "LISTING_TABLE_SELECTOR must be set")
		require(c.Crawl.NextSelector != "", "LISTING_NEXT_SELECTOR must be set")
		require(c.Crawl.QueueDepth > 0, "QUEUE_DEPTH must be > 0")
		require(c.Fetch.Workers > 0, "FETCH_WORKERS must be > 0")
		require(c.Fetch.DownloadDir != "", "DOWNLOAD_DIR must be set")
	case StageProcess:
		require(c.OCR.ProjectID != "", "GOOGLE_CLOUD_PROJECT must be set")
		require(c.OCR.MaxAttempts > 0, "OCR_MAX_ATTEMPTS must be > 0")
		require(c.Process.Workers > 0, "PAGE_WORKERS must be > 0")
		require(c.Process.DPI > 0, "RENDER_DPI must be > 0")
		require(c.Fetch.DownloadDir != "", "DOWNLOAD_DIR must be set")
		errs = append(errs, c.validateImages()...)
	case StageAssemble:
		require(c.Assemble.TranscriptDir != "", "TRANSCRIPT_DIR must be set")
	case StagePublish:
		require(c.Assemble.TranscriptDir != "", "TRANSCRIPT_DIR must be set")
		require(c.Index.BaseURL != "", "ANYTHING_LLM_BASE_URL must be set")
		require(c.Index.Token != "", "ANYTHING_LLM_AUTHORIZATION must be set")
		require(c.Index.Workspace != "", "ANYTHING_LLM_WORKSPACE must be set")
	case StageRepair:
		require(c.Fetch.DownloadDir != "", "DOWNLOAD_DIR must be set")
		if c.Repair.BackfillImages {
			errs = append(errs, c.validateImages()...)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown stage %q", stage))
	}
	return errors.Join(errs...)
}

func (c Config) validateImages() []error {
	var errs []error
	switch c.Images.Backend {
	case "gcs", "s3":
		if c.Images.Bucket == "" {
			errs = append(errs, fmt.Errorf("IMAGE_BUCKET must be set for the %s backend", c.Images.Backend))
		}
	case "local":
		if c.Images.LocalDir == "" {
			errs = append(errs, errors.New("IMAGE_LOCAL_DIR must be set for the local backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("IMAGE_BACKEND %q is not one of gcs, s3, local", c.Images.Backend))
	}
	if c.Images.MaxBytes <= 0 {
		errs = append(errs, errors.New("IMAGE_MAX_BYTES must be > 0"))
	}
	if c.Images.MinQuality <= 0 || c.Images.StartQuality < c.Images.MinQuality || c.Images.StartQuality > 100 {
		errs = append(errs, errors.New("image qualities must satisfy 0 < IMAGE_MIN_QUALITY <= IMAGE_START_QUALITY <= 100"))
	}
	return errs
}
