package stream

import (
	"fmt"
	"strings"
	"time"

	"postgrator/internal/model"
)

const (
	defaultReconnectInterval    = 2 * time.Second
	defaultReconnectMaxInterval = 30 * time.Second
)

// ParseReconnectMode validates a policy name from flags or config.
func ParseReconnectMode(s string) (model.ReconnectMode, error) {
	switch m := model.ReconnectMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", model.ReconnectNone:
		return model.ReconnectNone, nil
	case model.ReconnectFixed, model.ReconnectBackoff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid reconnect policy %q (valid: none|fixed|backoff)", s)
	}
}

// nextDelay returns the wait before reconnect attempt n (1-based) and
// whether the attempt is allowed at all.
func nextDelay(p model.ReconnectOptions, n int) (time.Duration, bool) {
	if p.Mode == "" || p.Mode == model.ReconnectNone {
		return 0, false
	}
	if p.MaxAttempts > 0 && n > p.MaxAttempts {
		return 0, false
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	if p.Mode == model.ReconnectFixed {
		return interval, true
	}

	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultReconnectMaxInterval
	}
	d := interval
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxInterval {
			return maxInterval, true
		}
	}
	if d > maxInterval {
		d = maxInterval
	}
	return d, true
}
