/**
 * Configuration for the supply-list worker
 *
 * Loads configuration from environment variables matching .env.supplylist,
 * optionally overlaid by a YAML config file.
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds worker configuration
type Config struct {
	// PostgreSQL configuration
	DatabaseURL string

	// Redis / queue configuration
	RedisURL  string
	QueueName string

	// Generative model configuration
	GeminiAPIKey     string
	GeminiBaseURL    string
	ExtractionModel  string
	StandardizeModel string
	ModelMaxRetries  int
	ModelRetryDelay  time.Duration
	ModelTimeout     time.Duration

	// OCR configuration
	OCRProvider        string
	DocAIProjectID     string
	DocAILocation      string
	DocAIProcessorID   string
	TesseractLanguages []string

	// Qdrant vector database configuration (optional textbook index)
	QdrantURL        string
	QdrantCollection string
	VoyageAPIKey     string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout time.Duration
	DryRun            bool

	LogLevel string
}

const (
	OCRProviderDocumentAI = "documentai"
	OCRProviderTesseract  = "tesseract"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("queue_name", "supplylist")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini_model", "gemini-1.5-pro")
	v.SetDefault("gemini_standardize_model", "gemini-1.5-pro")
	v.SetDefault("model_max_retries", 3)
	v.SetDefault("model_retry_delay", "5s")
	v.SetDefault("model_timeout", "180s")
	v.SetDefault("ocr_provider", OCRProviderDocumentAI)
	v.SetDefault("docai_project_id", "")
	v.SetDefault("docai_location", "eu")
	v.SetDefault("docai_processor_id", "")
	v.SetDefault("tesseract_languages", "fra,eng")
	v.SetDefault("qdrant_url", "")
	v.SetDefault("qdrant_collection", "supplylist_textbooks")
	v.SetDefault("voyage_api_key", "")
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("max_file_size", 20*1024*1024) // 20MB
	v.SetDefault("processing_timeout", "15m")
	v.SetDefault("dry_run", false)
	v.SetDefault("log_level", "info")
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return Load("")
}

// Load reads an optional config file and then environment variables, which win.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("database_url"),
		RedisURL:           v.GetString("redis_url"),
		QueueName:          v.GetString("queue_name"),
		GeminiAPIKey:       v.GetString("gemini_api_key"),
		GeminiBaseURL:      strings.TrimRight(v.GetString("gemini_base_url"), "/"),
		ExtractionModel:    v.GetString("gemini_model"),
		StandardizeModel:   v.GetString("gemini_standardize_model"),
		ModelMaxRetries:    v.GetInt("model_max_retries"),
		ModelRetryDelay:    v.GetDuration("model_retry_delay"),
		ModelTimeout:       v.GetDuration("model_timeout"),
		OCRProvider:        strings.ToLower(v.GetString("ocr_provider")),
		DocAIProjectID:     v.GetString("docai_project_id"),
		DocAILocation:      v.GetString("docai_location"),
		DocAIProcessorID:   v.GetString("docai_processor_id"),
		TesseractLanguages: splitList(v.GetString("tesseract_languages")),
		QdrantURL:          v.GetString("qdrant_url"),
		QdrantCollection:   v.GetString("qdrant_collection"),
		VoyageAPIKey:       v.GetString("voyage_api_key"),
		WorkerConcurrency:  v.GetInt("worker_concurrency"),
		MaxFileSize:        v.GetInt64("max_file_size"),
		ProcessingTimeout:  v.GetDuration("processing_timeout"),
		DryRun:             v.GetBool("dry_run"),
		LogLevel:           v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks settings every command needs
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.ModelMaxRetries < 1 {
		return fmt.Errorf("MODEL_MAX_RETRIES must be at least 1, got %d", c.ModelMaxRetries)
	}

	if c.ModelRetryDelay < 0 {
		return fmt.Errorf("MODEL_RETRY_DELAY must not be negative, got %v", c.ModelRetryDelay)
	}

	return nil
}

// ValidatePipeline checks settings needed to actually run OCR and extraction
func (c *Config) ValidatePipeline() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	switch c.OCRProvider {
	case OCRProviderDocumentAI:
		if c.DocAIProjectID == "" || c.DocAIProcessorID == "" {
			return fmt.Errorf("DOCAI_PROJECT_ID and DOCAI_PROCESSOR_ID are required for the documentai provider")
		}
	case OCRProviderTesseract:
		if len(c.TesseractLanguages) == 0 {
			return fmt.Errorf("TESSERACT_LANGUAGES must name at least one language")
		}
	default:
		return fmt.Errorf("OCR_PROVIDER must be %q or %q, got %q", OCRProviderDocumentAI, OCRProviderTesseract, c.OCRProvider)
	}

	return nil
}

// TextbookIndexEnabled reports whether both Qdrant and VoyageAI are configured
func (c *Config) TextbookIndexEnabled() bool {
	return c.QdrantURL != "" && c.VoyageAPIKey != ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
