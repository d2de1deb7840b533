package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	OCR      OCRConfig
	Parser   ParserConfig
	Output   OutputConfig
}

// DatabaseConfig holds visit-history store configuration.
// DSN decides the driver: "postgres://..." uses pgx, anything else is
// treated as a sqlite file path.
type DatabaseConfig struct {
	DSN         string
	DialTimeout time.Duration
}

// OCRConfig holds recognition-path configuration
type OCRConfig struct {
	Tesseract   string
	Pdftotext   string
	Pdftoppm    string
	TessdataDir string
	DPI         int
	MaxPages    int
	Languages   []string
	PageWorkers int
}

// ParserConfig holds semantic-parser (Gemini) configuration
type ParserConfig struct {
	ProjectID   string
	Region      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OutputConfig holds result artifact configuration
type OutputConfig struct {
	ResultPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:         getEnv("DB_URL", "healthpassportsg.db"),
			DialTimeout: getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT_BIN", "tesseract"),
			Pdftotext:   getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:    getEnv("PDFTOPPM_BIN", "pdftoppm"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			Languages:   getEnvAsList("OCR_LANGUAGES", nil),
			PageWorkers: getEnvAsInt("OCR_PAGE_WORKERS", 4),
		},
		Parser: ParserConfig{
			ProjectID:   getEnv("GCP_PROJECT_ID", ""),
			Region:      getEnv("VERTEX_AI_REGION", "us-central1"),
			Model:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature: getEnvAsFloat32("GEMINI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		Output: OutputConfig{
			ResultPath: getEnv("RESULT_PATH", "Result.json"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Output.ResultPath == "" {
		return NewAppError("CONFIG_ERROR", "RESULT_PATH is required", ErrInvalidInput)
	}
	return nil
}
