// Package params holds the immutable parameter sets for the three tokenomics
// variants. A run receives its parameters by value; nothing here is global
// or mutated once a run has started.
package params

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid or unknown parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// checker accumulates the first validation failure.
type checker struct {
	prefix string
	err    error
}

func (c *checker) fail(field, format string, args ...any) {
	if c.err == nil {
		c.err = &ConfigError{Field: c.prefix + field, Reason: fmt.Sprintf(format, args...)}
	}
}

func (c *checker) nonNegative(field string, v float64) {
	if v < 0 {
		c.fail(field, "must be >= 0, got %g", v)
	}
}

func (c *checker) positive(field string, v float64) {
	if v <= 0 {
		c.fail(field, "must be > 0, got %g", v)
	}
}

func (c *checker) fraction(field string, v float64) {
	if v < 0 || v > 1 {
		c.fail(field, "must be within [0, 1], got %g", v)
	}
}

// growth accepts any monthly rate that cannot wipe a level out in one step.
func (c *checker) growth(field string, v float64) {
	if v <= -1 {
		c.fail(field, "must be > -1, got %g", v)
	}
}
