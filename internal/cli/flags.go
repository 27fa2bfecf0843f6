// Package cli provides flag.Value types that remember whether they were set,
// so unset flags leave config-file and environment values alone.
package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/config"
)

type optional[T any] struct {
	value T
	set   bool
}

func (o *optional[T]) store(v T) {
	o.value = v
	o.set = true
}

// Value returns the parsed value and whether the flag was given.
func (o *optional[T]) Value() (T, bool) {
	return o.value, o.set
}

// Ptr returns a pointer to the value, or nil when the flag was not given.
func (o *optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// OptionalDuration accepts Go durations ("500ms") or bare seconds ("5").
type OptionalDuration struct{ optional[time.Duration] }

func (o *OptionalDuration) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return fmt.Errorf("negative duration: %q", s)
		}
		o.store(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalDuration) String() string {
	if !o.set {
		return ""
	}
	return o.value.String()
}

// OptionalInt records an int flag.
type OptionalInt struct{ optional[int] }

func (o *OptionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.value)
}

// OptionalString records a string flag.
type OptionalString struct{ optional[string] }

func (o *OptionalString) Set(s string) error {
	o.store(s)
	return nil
}

func (o *OptionalString) String() string {
	if !o.set {
		return ""
	}
	return o.value
}

// OptionalBool records a boolean flag; "-flag" alone means true.
type OptionalBool struct{ optional[bool] }

func (o *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalBool) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatBool(o.value)
}

func (o *OptionalBool) IsBoolFlag() bool {
	return true
}

// OptionalMetricsMode accepts per-target, aggregated or both.
type OptionalMetricsMode struct{ optional[config.MetricsMode] }

func (o *OptionalMetricsMode) Set(s string) error {
	mode := config.MetricsMode(s)
	if !mode.Valid() {
		return fmt.Errorf("invalid metrics mode: %q (valid values: per-target, aggregated, both)", s)
	}
	o.store(mode)
	return nil
}

func (o *OptionalMetricsMode) String() string {
	if !o.set {
		return ""
	}
	return string(o.value)
}

// OptionalLevel accepts debug, info, warn or error.
type OptionalLevel struct{ optional[string] }

func (o *OptionalLevel) Set(s string) error {
	switch s {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (valid values: debug, info, warn, error)", s)
	}
	o.store(s)
	return nil
}

func (o *OptionalLevel) String() string {
	if !o.set {
		return ""
	}
	return o.value
}
