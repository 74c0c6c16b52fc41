package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

type Config struct {
	APIBaseURL          string
	APIKey              string
	TableName           string
	Format              string
	Rows                int
	CustomerCardinality int
	Seed                int64
	HTTPTimeout         time.Duration
	Replace             bool
	SaveAfterLoad       bool
}

// DefaultConfig seeds with a fixed value so repeated runs produce the same
// dataset, which keeps demo walkthroughs and screenshots reproducible.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:          "http://localhost:8080",
		APIKey:              "",
		TableName:           "demo_orders",
		Format:              FormatParquet,
		Rows:                500,
		CustomerCardinality: 40,
		Seed:                1,
		HTTPTimeout:         30 * time.Second,
		Replace:             true,
		SaveAfterLoad:       false,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "QUERYDESK_SEED_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_SEED_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_SEED_TABLE", &cfg.TableName); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYDESK_SEED_FORMAT", &cfg.Format); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDESK_SEED_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYDESK_SEED_CUSTOMER_CARDINALITY", &cfg.CustomerCardinality); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "QUERYDESK_SEED_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERYDESK_SEED_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_SEED_REPLACE", &cfg.Replace); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "QUERYDESK_SEED_SAVE", &cfg.SaveAfterLoad); err != nil {
		return Config{}, err
	}

	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format != FormatCSV && cfg.Format != FormatParquet {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_FORMAT must be %q or %q", FormatCSV, FormatParquet)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_API_URL is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_TABLE is required")
	}
	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_ROWS must be > 0")
	}
	if cfg.CustomerCardinality <= 0 {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_CUSTOMER_CARDINALITY must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("QUERYDESK_SEED_HTTP_TIMEOUT must be > 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.TableName = strings.TrimSpace(cfg.TableName)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
