// Package retry computes capped exponential backoff with jitter and runs
// operations under it.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const minDelay = time.Millisecond

// Config bounds an exponential backoff. Jitter is a fraction of the delay in [0,1).
type Config struct {
	Base   time.Duration `yaml:"base"`
	Max    time.Duration `yaml:"max"`
	Jitter float64       `yaml:"jitter"`
}

func DefaultConfig() Config {
	return Config{Base: time.Second, Max: time.Minute, Jitter: 0.2}
}

func (c Config) Validate() error {
	switch {
	case c.Base <= 0:
		return errors.New("base must be positive")
	case c.Max < c.Base:
		return errors.New("max must be >= base")
	case c.Jitter < 0 || c.Jitter >= 1:
		return errors.New("jitter must be in [0,1)")
	}
	return nil
}

// Delay returns the wait after the given failed attempt, counting from 1.
// A nil rng disables jitter.
func (c Config) Delay(attempt int, rng *rand.Rand) (time.Duration, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	if attempt < 1 {
		return 0, errors.New("attempt must be >= 1")
	}

	delay := c.Base
	for i := 1; i < attempt && delay < c.Max; i++ {
		delay *= 2
	}
	delay = min(delay, c.Max)

	if c.Jitter > 0 && rng != nil {
		scale := 1 + c.Jitter*(2*rng.Float64()-1)
		delay = max(time.Duration(float64(delay)*scale), minDelay)
	}
	return delay, nil
}

// Backoff counts consecutive failures. It is not safe for concurrent use.
type Backoff struct {
	cfg      Config
	rng      *rand.Rand
	failures int
}

func NewBackoff(cfg Config) (*Backoff, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backoff{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

// Next records a failure and returns how long to wait before trying again.
func (b *Backoff) Next() time.Duration {
	b.failures++
	d, _ := b.cfg.Delay(b.failures, b.rng)
	return d
}

func (b *Backoff) Failures() int { return b.failures }

func (b *Backoff) Reset() { b.failures = 0 }

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, maxAttempts is reached, or ctx is done.
// The last error from fn is returned when attempts run out.
func Do(ctx context.Context, cfg Config, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		return errors.New("maxAttempts must be >= 1")
	}
	b, err := NewBackoff(cfg)
	if err != nil {
		return err
	}
	for {
		if err = fn(ctx); err == nil {
			return nil
		}
		if b.Failures()+1 >= maxAttempts {
			return err
		}
		if serr := Sleep(ctx, b.Next()); serr != nil {
			return serr
		}
	}
}
