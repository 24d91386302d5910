package merge

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts   = 8
	DefaultRetryInterval = 15 * time.Second
	DefaultMaxPolls      = 10
	DefaultPollInterval  = 3 * time.Second
)

// Policy bounds the merge retries of one promotion.
type Policy struct {
	// MaxAttempts is the number of outer merge
	// attempts.
	MaxAttempts int
	// RetryInterval separates two outer attempts.
	RetryInterval time.Duration
	// MaxPolls caps the re-fetches made while the
	// remote still reports unknown mergeability.
	MaxPolls int
	// PollInterval separates two re-fetches.
	PollInterval time.Duration
}

// DefaultPolicy returns 8 attempts 15s apart, each
// polling mergeability up to 10 times 3s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		RetryInterval: DefaultRetryInterval,
		MaxPolls:      DefaultMaxPolls,
		PollInterval:  DefaultPollInterval,
	}
}

// Validate checks that every bound is finite and
// usable.
func (p Policy) Validate() error {
	const errCtx = "validating merge policy"

	var errs []error

	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf(
			"max attempts must be at least 1, got %d",
			p.MaxAttempts,
		))
	}

	if p.MaxPolls < 0 {
		errs = append(errs, fmt.Errorf(
			"max polls must not be negative, got %d",
			p.MaxPolls,
		))
	}

	if p.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf(
			"retry interval must not be negative, got %s",
			p.RetryInterval,
		))
	}

	if p.PollInterval < 0 {
		errs = append(errs, fmt.Errorf(
			"poll interval must not be negative, got %s",
			p.PollInterval,
		))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
