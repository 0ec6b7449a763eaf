package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Pagination modes understood by the annotator.
const (
	PaginationCursor = "cursor"
	PaginationOffset = "offset"
)

// Common contains Elasticsearch parameters shared by every command.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Importer holds configuration for the CSV -> Elasticsearch import.
type Importer struct {
	Common
	BatchSize  int
	TextColumn string
}

// Annotator holds configuration for the entity/sentiment pass.
type Annotator struct {
	Common
	PageSize      int
	Pagination    string
	CacheCapacity int
	CacheTTL      time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://localhost:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "headlines"),
	}
}

// LoadImporter builds an Importer config from environment variables.
func LoadImporter() (*Importer, error) {
	c := &Importer{
		Common:     loadCommon(),
		BatchSize:  getInt("IMPORT_BATCH_SIZE", 1000),
		TextColumn: getEnv("IMPORT_TEXT_COLUMN", "headline_text"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks importer settings, including flag overrides applied after loading.
func (c *Importer) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive")
	}
	if strings.TrimSpace(c.TextColumn) == "" {
		return fmt.Errorf("IMPORT_TEXT_COLUMN cannot be empty")
	}
	return nil
}

// LoadAnnotator builds an Annotator config from environment variables.
func LoadAnnotator() (*Annotator, error) {
	c := &Annotator{
		Common:        loadCommon(),
		PageSize:      getInt("ANNOTATOR_PAGE_SIZE", 5000),
		Pagination:    strings.ToLower(getEnv("ANNOTATOR_PAGINATION", PaginationCursor)),
		CacheCapacity: getInt("ANNOTATOR_CACHE_CAPACITY", 10000),
		CacheTTL:      getDuration("ANNOTATOR_CACHE_TTL", "1h"),
		KafkaBrokers:  splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("ANNOTATOR_KAFKA_TOPIC", ""),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks annotator settings, including flag overrides applied after loading.
func (c *Annotator) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("ANNOTATOR_PAGE_SIZE must be positive")
	}
	if c.Pagination != PaginationCursor && c.Pagination != PaginationOffset {
		return fmt.Errorf("ANNOTATOR_PAGINATION must be %q or %q", PaginationCursor, PaginationOffset)
	}
	if c.CacheCapacity < 0 {
		return fmt.Errorf("ANNOTATOR_CACHE_CAPACITY cannot be negative")
	}
	if c.KafkaTopic != "" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must contain at least one broker when ANNOTATOR_KAFKA_TOPIC is set")
	}
	return nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
