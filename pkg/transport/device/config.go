package device

import "time"

// Config holds the protocol-constant timings for the device transport.
// Defaults match the wire protocol's normative constants; overriding them
// is intended for tests, not production traffic.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	ForceReconnectSettle time.Duration
	JoinTimeout       time.Duration
}

// DefaultConfig returns the protocol-mandated timings: 30s heartbeat
// interval, 60s heartbeat timeout, 1s backoff base doubling to a 30s cap,
// 500ms forced-reconnect settle delay, 5s join timeout.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     60 * time.Second,
		BackoffBase:          1 * time.Second,
		BackoffCap:           30 * time.Second,
		ForceReconnectSettle: 500 * time.Millisecond,
		JoinTimeout:          5 * time.Second,
	}
}

// backoffDelay returns the reconnect delay for the attempt-th consecutive
// failure (attempt counted from 1): min(base * 2^(attempt-1), cap).
func backoffDelay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.BackoffCap {
			return cfg.BackoffCap
		}
	}
	if delay > cfg.BackoffCap {
		return cfg.BackoffCap
	}
	return delay
}
