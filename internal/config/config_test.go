package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Environment-backed tests cannot run in parallel with t.Setenv.

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/archive")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/archive", cfg.Catalog.DSN)
	assert.Equal(t, "https://www.archives.gov/research/jfk/release-2025", cfg.Crawl.ListingURL)
	assert.Equal(t, "#DataTables_Table_0", cfg.Crawl.TableSelector)
	assert.Equal(t, "#DataTables_Table_0_next", cfg.Crawl.NextSelector)
	assert.Equal(t, 2*time.Second, cfg.Crawl.SettleDelay)
	assert.Equal(t, 3, cfg.Fetch.Workers)
	assert.Equal(t, time.Second, cfg.Fetch.Delay)
	assert.Equal(t, "downloaded-pdfs", cfg.Fetch.DownloadDir)
	assert.Equal(t, 3, cfg.OCR.MaxAttempts)
	assert.Equal(t, time.Second, cfg.OCR.RetryBase)
	assert.Equal(t, 10, cfg.Process.Workers)
	assert.Equal(t, 300, cfg.Process.DPI)
	assert.Equal(t, 10_000_000, cfg.Images.MaxBytes)
	assert.Equal(t, 85, cfg.Images.StartQuality)
	assert.Equal(t, 20, cfg.Images.MinQuality)
	assert.Equal(t, "ocr-text", cfg.Assemble.TranscriptDir)
	assert.Equal(t, "eng", cfg.Repair.TesseractLanguage)
	assert.True(t, cfg.Repair.ReOCRErrors)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/archive")
	t.Setenv("FETCH_WORKERS", "5")
	t.Setenv("OCR_RETRY_BASE", "250ms")
	t.Setenv("IMAGE_BACKEND", " GCS ")
	t.Setenv("IMAGE_BUCKET", "pages-bucket")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Fetch.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.OCR.RetryBase)
	assert.Equal(t, "gcs", cfg.Images.Backend)
	assert.Equal(t, "pages-bucket", cfg.Images.Bucket)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "ANYTHING_LLM_BASE_URL=https://llm.example\nANYTHING_LLM_WORKSPACE=jfk\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	for _, key := range []string{"ANYTHING_LLM_BASE_URL", "ANYTHING_LLM_WORKSPACE"} {
		// t.Setenv restores the original value; godotenv never overrides a set variable.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://llm.example", cfg.Index.BaseURL)
	assert.Equal(t, "jfk", cfg.Index.Workspace)
}

func TestValidateForStages(t *testing.T) {
	t.Parallel()

	base := Config{
		Catalog:  CatalogConfig{DSN: "postgres://db"},
		Crawl:    CrawlConfig{ListingURL: "https://x", TableSelector: "#t", NextSelector: "#n", QueueDepth: 8},
		Fetch:    FetchConfig{Workers: 3, DownloadDir: "dl"},
		OCR:      OCRConfig{ProjectID: "p", MaxAttempts: 3},
		Process:  ProcessConfig{Workers: 10, DPI: 300},
		Images:   ImageConfig{Backend: "local", LocalDir: "img", MaxBytes: 10, StartQuality: 85, MinQuality: 20},
		Assemble: AssembleConfig{TranscriptDir: "out"},
		Index:    IndexConfig{BaseURL: "https://llm", Token: "t", Workspace: "w"},
		Repair:   RepairConfig{BackfillImages: true},
	}
	for _, stage := range []Stage{StageCrawl, StageProcess, StageAssemble, StagePublish, StageRepair} {
		assert.NoError(t, base.ValidateFor(stage), stage)
	}

	missingDSN := base
	missingDSN.Catalog.DSN = ""
	err := missingDSN.ValidateFor(StageAssemble)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	noCreds := base
	noCreds.Index = IndexConfig{}
	err = noCreds.ValidateFor(StagePublish)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANYTHING_LLM_BASE_URL")
	assert.Contains(t, err.Error(), "ANYTHING_LLM_AUTHORIZATION")
	assert.Contains(t, err.Error(), "ANYTHING_LLM_WORKSPACE")

	badBackend := base
	badBackend.Images.Backend = "ftp"
	assert.Error(t, badBackend.ValidateFor(StageProcess))

	bucketless := base
	bucketless.Images.Backend = "s3"
	assert.Error(t, bucketless.ValidateFor(StageProcess))

	badQuality := base
	badQuality.Images.MinQuality = 90
	assert.Error(t, badQuality.ValidateFor(StageProcess))

	assert.Error(t, base.ValidateFor(Stage("dance")))
}
