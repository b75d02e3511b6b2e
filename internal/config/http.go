package config

import (
	"fmt"
	"time"
)

// HTTPConfig contains outbound HTTP settings for the artifact and geo endpoints.
type HTTPConfig struct {
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s" validate:"gt=0"`

	// Retry policy
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"10" validate:"min=0"`
	InitialBackoff  time.Duration `envconfig:"INITIAL_BACKOFF" default:"500ms" validate:"gt=0"`
	MaxBackoff      time.Duration `envconfig:"MAX_BACKOFF" default:"30s" validate:"gt=0"`
	RetryableStatus []int         `envconfig:"RETRYABLE_STATUS" default:"408,429,500,502,503,504" validate:"dive,min=100,max=599"`
}

// Validate checks that the backoff window is coherent.
func (c *HTTPConfig) Validate() error {
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("http max_backoff (%s) cannot be lower than initial_backoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}
	return nil
}
