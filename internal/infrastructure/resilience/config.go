package resilience

import "time"

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	RetryablePatterns   []string

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerSuccessThreshold uint32
	BreakerCallTimeout      time.Duration
	BreakerResetTimeout     time.Duration

	// OnStateChange is invoked after a breaker changes state. It must not block.
	OnStateChange func(adapter string, from, to BreakerState)
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     10 * time.Second,
		RetryMultiplier:     2.0,
		RetryablePatterns:   DefaultRetryablePatterns(),

		BreakerEnabled:          true,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerCallTimeout:      5 * time.Second,
		BreakerResetTimeout:     60 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if len(out.RetryablePatterns) == 0 {
		out.RetryablePatterns = def.RetryablePatterns
	}

	if out.BreakerFailureThreshold == 0 {
		out.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if out.BreakerSuccessThreshold == 0 {
		out.BreakerSuccessThreshold = def.BreakerSuccessThreshold
	}
	if out.BreakerCallTimeout <= 0 {
		out.BreakerCallTimeout = def.BreakerCallTimeout
	}
	if out.BreakerResetTimeout <= 0 {
		out.BreakerResetTimeout = def.BreakerResetTimeout
	}

	return out
}
