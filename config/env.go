package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROSPECTMESH_"

var (
	envVarPatterns = struct {
		withDefault *regexp.Regexp
		braced      *regexp.Regexp
	}{
		withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	}
)

// expandEnvVars replaces ${VAR} and ${VAR:-default} references.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	return envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})
}

// LoadEnvFiles loads .env.local and .env from the working directory when
// present. Variables already set in the environment win.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PROSPECTMESH_* variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"LLM_PROVIDER":      &c.LLM.Provider,
		"LLM_MODEL":         &c.LLM.Model,
		"LLM_API_KEY":       &c.LLM.APIKey,
		"LLM_BASE_URL":      &c.LLM.BaseURL,
		"EMBEDDER_PROVIDER": &c.Embedder.Provider,
		"EMBEDDER_MODEL":    &c.Embedder.Model,
		"SEARCH_URL":        &c.Services.SearchURL,
		"EMAIL_URL":         &c.Services.EmailURL,
		"CALENDAR_URL":      &c.Services.CalendarURL,
		"STORE_URL":         &c.Services.StoreURL,
		"STORE_DRIVER":      &c.Store.Driver,
		"STORE_PATH":        &c.Store.Path,
		"VECTOR_PATH":       &c.Vector.PersistPath,
		"SUPPRESSION_FILE":  &c.Compliance.SuppressionFile,
		"PARTIAL_FACTS":     &c.Agents.PartialFacts,
		"LOG_BACKEND":       &c.Logging.Backend,
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"METRICS_ADDR":      &c.Metrics.Addr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PARALLELISM":     &c.Engine.Parallelism,
		"MAX_GENERATIONS": &c.Engine.MaxGenerations,
		"MAX_SLOTS":       &c.Agents.MaxSlots,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MAX_STAGE_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_STAGE_RETRIES: %w", EnvPrefix, err)
		}
		c.Engine.MaxStageRetries = &n
	}

	floats := map[string]*float64{
		"RATE_LIMIT_RPS": &c.Services.RateLimitRPS,
		"MIN_FIT_SCORE":  &c.Agents.MinFitScore,
	}
	for key, dst := range floats {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
	}

	durations := map[string]*Duration{
		"STAGE_TIMEOUT":   &c.Engine.StageTimeout,
		"LLM_TIMEOUT":     &c.Agents.LLMTimeout,
		"SERVICE_TIMEOUT": &c.Services.Timeout,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = Duration(d)
	}

	if v, ok := os.LookupEnv(EnvPrefix + "METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		c.Metrics.Enabled = b
	}

	return nil
}
