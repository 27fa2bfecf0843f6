package config

import "time"

// MetricsMode selects which metric families /metrics exposes.
type MetricsMode string

const (
	MetricsModePerTarget  MetricsMode = "per-target"
	MetricsModeAggregated MetricsMode = "aggregated"
	MetricsModeBoth       MetricsMode = "both"
)

// Valid reports whether m is a known mode.
func (m MetricsMode) Valid() bool {
	switch m {
	case MetricsModePerTarget, MetricsModeAggregated, MetricsModeBoth:
		return true
	}
	return false
}

// GlobalOptions holds settings merged from defaults, the config file, the
// environment and CLI flags, in that order of precedence.
type GlobalOptions struct {
	Interval       time.Duration
	Timeout        time.Duration
	MaxConcurrency int
	Listen         string
	DataFile       string
	PushInterval   time.Duration
	MetricsMode    MetricsMode
	MetricsListen  string
	UIDisable      bool
	UIScale        int
	LogLevel       string
	LogFile        string
}

// Config is the fully resolved configuration.
type Config struct {
	Global GlobalOptions

	// AdminPassword guards target mutations. Empty disables them.
	AdminPassword string
}

// CLIOverrides holds optional CLI values that override every other source.
type CLIOverrides struct {
	Interval       *time.Duration
	Timeout        *time.Duration
	MaxConcurrency *int
	Listen         *string
	DataFile       *string
	MetricsMode    *MetricsMode
	MetricsListen  *string
	UIDisable      *bool
	UIScale        *int
	LogLevel       *string
}
