// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package engineclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for idempotent engine calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts. 0 and 1 both mean a
	// single attempt.
	MaxAttempts int

	// InitialWait is the wait before the first retry.
	InitialWait time.Duration

	// MaxWait caps the wait between retries.
	MaxWait time.Duration

	// Multiplier for exponential backoff (must be >= 1.0).
	Multiplier float64

	// Jitter adds up to ±25% randomness to each wait.
	Jitter bool
}

// DefaultRetryConfig returns the retry behavior used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NoRetry returns a config that disables retries.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// Validate checks if the retry config is valid.
func (rc RetryConfig) Validate() error {
	if rc.MaxAttempts < 0 {
		return fmt.Errorf("MaxAttempts must be >= 0, got %d", rc.MaxAttempts)
	}
	if rc.MaxAttempts <= 1 {
		return nil
	}
	if rc.InitialWait < 0 {
		return fmt.Errorf("InitialWait must be >= 0, got %v", rc.InitialWait)
	}
	if rc.MaxWait < 0 {
		return fmt.Errorf("MaxWait must be >= 0, got %v", rc.MaxWait)
	}
	if rc.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", rc.Multiplier)
	}
	if rc.MaxWait > 0 && rc.InitialWait > rc.MaxWait {
		return fmt.Errorf("InitialWait (%v) must be <= MaxWait (%v)", rc.InitialWait, rc.MaxWait)
	}
	return nil
}

// wait computes the backoff before retry number attempt (1-based).
func (rc RetryConfig) wait(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	w := float64(rc.InitialWait) * math.Pow(rc.Multiplier, float64(attempt-1))
	if rc.MaxWait > 0 && w > float64(rc.MaxWait) {
		w = float64(rc.MaxWait)
	}
	if rc.Jitter {
		spread := w * 0.25
		w += (rand.Float64() * 2 * spread) - spread
	}
	if w < 0 {
		w = 0
	}
	return time.Duration(w)
}

// retryable reports whether err is worth another attempt: transport
// failures and 502/503/504 responses.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// withRetry runs fn until it succeeds, fails with a permanent error, the
// attempts are exhausted, or ctx is done.
func withRetry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(config.wait(attempt + 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}
