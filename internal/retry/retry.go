// Package retry repeats a failing operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gxo-labs/txinstall/internal/tracing"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
)

// Operation is one attempt.
type Operation func(ctx context.Context) error

// Config controls the attempts of Helper.Do.
type Config struct {
	// Attempts is the total number of tries. Values below 1 mean 1.
	Attempts int
	// Delay is the wait after the first failure.
	Delay time.Duration
	// MaxDelay caps the wait between attempts. Zero means no cap.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each failure. Values below 1 mean 1.
	BackoffFactor float64
	// Jitter randomizes each wait by up to this fraction, between 0 and 1.
	Jitter float64
	// Name labels log lines.
	Name string
}

// Helper runs operations under a Config.
type Helper struct {
	log        txlog.Logger
	randSource *rand.Rand
	redact     func(string) string
}

// NewHelper creates a Helper. Error text in log lines and returned errors is
// passed through tracing.RedactSecretsInString with the default keywords.
func NewHelper(log txlog.Logger) *Helper {
	if log == nil {
		panic("retry.NewHelper requires a non-nil logger")
	}
	return &Helper{
		log:        log,
		randSource: rand.New(rand.NewSource(time.Now().UnixNano())),
		redact: func(s string) string {
			return tracing.RedactSecretsInString(s, tracing.DefaultRedactedKeywords)
		},
	}
}

// SetRedactor replaces the function applied to error text.
func (h *Helper) SetRedactor(redact func(string) string) {
	if redact != nil {
		h.redact = redact
	}
}

func (h *Helper) redactErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if redacted := h.redact(msg); redacted != msg {
		return errors.New(redacted)
	}
	return err
}

// Do calls op until it succeeds, the attempts are used up or ctx ends. The
// last error is returned, redacted.
func (h *Helper) Do(ctx context.Context, cfg Config, op Operation) error {
	cfg = normalize(cfg)
	prefix := ""
	if cfg.Name != "" {
		prefix = fmt.Sprintf("%s: ", cfg.Name)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return fmt.Errorf("retry cancelled after %d attempts with last error: %w (context: %v)", attempt-1, h.redactErr(lastErr), err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				h.log.Infof("%soperation succeeded on attempt %d/%d", prefix, attempt, cfg.Attempts)
			}
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		wait := h.delay(cfg, attempt)
		h.log.Warnf("%soperation failed on attempt %d/%d (retrying in %v): %v",
			prefix, attempt, cfg.Attempts, wait.Truncate(time.Millisecond), h.redactErr(lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry delay cancelled after attempt %d with error: %w (context: %v)", attempt, h.redactErr(lastErr), ctx.Err())
		}
	}

	redacted := h.redactErr(lastErr)
	if cfg.Attempts > 1 {
		h.log.Errorf("%soperation failed after %d attempts: %v", prefix, cfg.Attempts, redacted)
	}
	return redacted
}

func normalize(cfg Config) Config {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.BackoffFactor < 1.0 {
		cfg.BackoffFactor = 1.0
	}
	cfg.Jitter = math.Max(0, math.Min(1, cfg.Jitter))
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.MaxDelay < 0 {
		cfg.MaxDelay = 0
	}
	return cfg
}

// delay returns the wait after the given failed attempt.
func (h *Helper) delay(cfg Config, attempt int) time.Duration {
	base := float64(cfg.Delay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if base > float64(math.MaxInt64) {
		base = float64(math.MaxInt64)
	}
	wait := time.Duration(base)

	if cfg.Jitter > 0 {
		factor := cfg.Jitter * (h.randSource.Float64()*2.0 - 1.0)
		wait += time.Duration(float64(wait) * factor)
		if wait < 0 {
			wait = 0
		}
	}
	if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
		wait = cfg.MaxDelay
	}
	return wait
}
