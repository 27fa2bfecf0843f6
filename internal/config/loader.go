package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix        = "IPWATCH_"
	envAdminPassword = "ADMIN_PASSWORD"
)

// optionKeys lists every recognised key; environment variables use the
// upper-cased form with dots replaced by underscores (IPWATCH_METRICS_MODE).
var optionKeys = []string{
	"interval",
	"timeout",
	"max_concurrency",
	"listen",
	"data_file",
	"push_interval",
	"metrics.mode",
	"metrics.listen",
	"ui.disable",
	"ui.scale",
	"log_level",
	"log_file",
}

// DefaultGlobalOptions returns baseline settings used before any source is
// applied.
func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Interval:       5 * time.Second,
		Timeout:        2 * time.Second,
		MaxConcurrency: 1,
		Listen:         ":3000",
		DataFile:       "monitored_ips.json",
		PushInterval:   5 * time.Second,
		MetricsMode:    MetricsModeBoth,
		MetricsListen:  "",
		UIDisable:      false,
		UIScale:        10,
		LogLevel:       "info",
		LogFile:        "",
	}
}

// Load resolves the configuration. path is an optional YAML file; an empty
// path skips it, a missing explicit path is an error. The environment is read
// as-is; call LoadEnvFile first to merge a .env file.
func Load(path string, overrides CLIOverrides) (*Config, error) {
	cfg := &Config{Global: DefaultGlobalOptions()}

	if path != "" {
		pairs, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := applyPairs(&cfg.Global, pairs); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := applyPairs(&cfg.Global, envPairs(os.LookupEnv)); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	cfg.AdminPassword = os.Getenv(envAdminPassword)

	applyCLIOverrides(&cfg.Global, overrides)

	if err := validate(cfg.Global); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	pairs := make(map[string]string)
	flatten("", doc, pairs)
	return pairs, nil
}

// flatten turns nested YAML mappings into dotted keys.
func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			flatten(full, v, out)
		case nil:
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

func envPairs(lookup func(string) (string, bool)) map[string]string {
	pairs := make(map[string]string)
	for _, key := range optionKeys {
		if value, ok := lookup(envName(key)); ok && value != "" {
			pairs[key] = value
		}
	}
	return pairs
}

func envName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func applyPairs(global *GlobalOptions, pairs map[string]string) error {
	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := strings.TrimSpace(pairs[key])
		switch key {
		case "interval":
			d, err := parseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}
			global.Interval = d
		case "timeout":
			d, err := parseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			global.Timeout = d
		case "push_interval":
			d, err := parseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid push_interval: %w", err)
			}
			global.PushInterval = d
		case "max_concurrency":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid max_concurrency: %w", err)
			}
			global.MaxConcurrency = n
		case "listen":
			global.Listen = listenAddr(val)
		case "data_file":
			global.DataFile = val
		case "metrics.mode":
			mode := MetricsMode(val)
			if !mode.Valid() {
				return fmt.Errorf("invalid metrics.mode: %q", val)
			}
			global.MetricsMode = mode
		case "metrics.listen":
			global.MetricsListen = listenAddr(val)
		case "ui.disable":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid ui.disable: %w", err)
			}
			global.UIDisable = b
		case "ui.scale":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid ui.scale: %w", err)
			}
			global.UIScale = n
		case "log_level":
			global.LogLevel = val
		case "log_file":
			global.LogFile = val
		default:
			// Ignore unknown keys for forward compatibility.
		}
	}
	return nil
}

func applyCLIOverrides(global *GlobalOptions, overrides CLIOverrides) {
	if overrides.Interval != nil {
		global.Interval = *overrides.Interval
	}
	if overrides.Timeout != nil {
		global.Timeout = *overrides.Timeout
	}
	if overrides.MaxConcurrency != nil {
		global.MaxConcurrency = *overrides.MaxConcurrency
	}
	if overrides.Listen != nil {
		global.Listen = listenAddr(*overrides.Listen)
	}
	if overrides.DataFile != nil {
		global.DataFile = *overrides.DataFile
	}
	if overrides.MetricsMode != nil {
		global.MetricsMode = *overrides.MetricsMode
	}
	if overrides.MetricsListen != nil {
		global.MetricsListen = listenAddr(*overrides.MetricsListen)
	}
	if overrides.UIDisable != nil {
		global.UIDisable = *overrides.UIDisable
	}
	if overrides.UIScale != nil {
		global.UIScale = *overrides.UIScale
	}
	if overrides.LogLevel != nil {
		global.LogLevel = *overrides.LogLevel
	}
}

func validate(global GlobalOptions) error {
	if global.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", global.Interval)
	}
	if global.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", global.Timeout)
	}
	if global.PushInterval <= 0 {
		return fmt.Errorf("push_interval must be positive, got %v", global.PushInterval)
	}
	if global.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", global.MaxConcurrency)
	}
	if global.UIScale < 1 {
		return fmt.Errorf("ui.scale must be at least 1, got %d", global.UIScale)
	}
	if !global.MetricsMode.Valid() {
		return fmt.Errorf("invalid metrics.mode: %q", global.MetricsMode)
	}
	if global.DataFile == "" {
		return fmt.Errorf("data_file must not be empty")
	}
	return nil
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(value string) (time.Duration, error) {
	if isDigits(value) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

// listenAddr turns a bare port into ":port".
func listenAddr(value string) string {
	if isDigits(value) {
		return ":" + value
	}
	return value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
