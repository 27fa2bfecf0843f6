package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPropertyBareIntegersAreSeconds checks that every duration key reads a
// bare integer as a number of seconds.
func TestPropertyBareIntegersAreSeconds(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("interval, timeout and push_interval accept seconds", prop.ForAll(
		func(interval, timeout, push int) bool {
			global := DefaultGlobalOptions()
			err := applyPairs(&global, map[string]string{
				"interval":      fmt.Sprint(interval),
				"timeout":       fmt.Sprint(timeout),
				"push_interval": fmt.Sprint(push),
			})
			if err != nil {
				return false
			}
			return global.Interval == time.Duration(interval)*time.Second &&
				global.Timeout == time.Duration(timeout)*time.Second &&
				global.PushInterval == time.Duration(push)*time.Second
		},
		gen.IntRange(1, 3600),
		gen.IntRange(1, 60),
		gen.IntRange(1, 600),
	))

	props.TestingRun(t)
}

// TestPropertyListenAddr checks that bare ports gain a leading colon and
// host:port values pass through unchanged.
func TestPropertyListenAddr(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("bare port becomes :port", prop.ForAll(
		func(port int) bool {
			return listenAddr(fmt.Sprint(port)) == fmt.Sprintf(":%d", port)
		},
		gen.IntRange(1, 65535),
	))

	props.Property("host:port is unchanged", prop.ForAll(
		func(port int) bool {
			addr := fmt.Sprintf("127.0.0.1:%d", port)
			return listenAddr(addr) == addr
		},
		gen.IntRange(1, 65535),
	))

	props.TestingRun(t)
}

// TestPropertyOverridePrecedence checks that a CLI override always beats the
// value that came from the file or environment.
func TestPropertyOverridePrecedence(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("cli max_concurrency wins", prop.ForAll(
		func(fromFile, fromCLI int) bool {
			global := DefaultGlobalOptions()
			if err := applyPairs(&global, map[string]string{"max_concurrency": fmt.Sprint(fromFile)}); err != nil {
				return false
			}
			applyCLIOverrides(&global, CLIOverrides{MaxConcurrency: &fromCLI})
			return global.MaxConcurrency == fromCLI && validate(global) == nil
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 64),
	))

	props.TestingRun(t)
}
