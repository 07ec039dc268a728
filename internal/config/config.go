// Package config loads the VPPE_* environment variables into a typed
// Config, following pdf-extractor's env-var + .env loading pattern.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "VPPE_"

// Config holds every tunable the conversion service needs, plus the
// supplemented MaxImageDimension and CleanupInterval.
type Config struct {
	OllamaBaseURL string
	OllamaModel   string
	OCRTimeout    time.Duration
	OCRRetries    int

	RenderDPI        int
	JPEGQuality      int
	MaxImageDimension int

	OCRWorkers      int
	RenderQueueSize int

	PagesPerChapter int

	DataDir string

	JobTTLHours int
	PDFTTLHours int

	SSERingBufferSize int
	CleanupInterval   time.Duration

	DefaultOCRPrompt string

	HTTPAddr string
}

// Load reads a .env file if present (ignored if missing, matching the
// teacher's godotenv.Load() call in cmd/pdf-extractor/main.go) then
// populates Config from the environment, falling back to documented
// defaults for every unset variable.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		OllamaBaseURL: getString("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getString("OLLAMA_MODEL", "qwen2.5-vl:7b"),
		OCRTimeout:    time.Duration(getInt("OCR_TIMEOUT", 120)) * time.Second,
		OCRRetries:    getInt("OCR_RETRIES", 3),

		RenderDPI:         getInt("RENDER_DPI", 300),
		JPEGQuality:       getInt("JPEG_QUALITY", 85),
		MaxImageDimension: getInt("MAX_IMAGE_DIMENSION", 1568),

		OCRWorkers:      getInt("OCR_WORKERS", 2),
		RenderQueueSize: getInt("RENDER_QUEUE_SIZE", 4),

		PagesPerChapter: getInt("PAGES_PER_CHAPTER", 20),

		DataDir: getString("DATA_DIR", "./data"),

		JobTTLHours: getInt("JOB_TTL_HOURS", 24),
		PDFTTLHours: getInt("PDF_TTL_HOURS", 1),

		SSERingBufferSize: getInt("SSE_RING_BUFFER_SIZE", 200),
		CleanupInterval:   getDuration("CLEANUP_INTERVAL", 10*time.Minute),

		DefaultOCRPrompt: getString(
			"DEFAULT_OCR_PROMPT",
			"Extract all text from this scanned book page. "+
				"Preserve paragraph structure. Output only the extracted text, nothing else.",
		),

		HTTPAddr: getString("HTTP_ADDR", ":8080"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
