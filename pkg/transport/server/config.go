package server

import "time"

// Config holds the protocol-constant timings and resource limits for the
// server-side transport acceptor. Defaults mirror the device transport's
// Config (pkg/transport/device) so both ends agree on heartbeat cadence,
// plus the per-connection rate limits from the concurrency model.
type Config struct {
	HeartbeatTimeout time.Duration
	WriteTimeout     time.Duration
	JoinTimeout      time.Duration

	ReadBufferSize  int
	WriteBufferSize int

	// MessagesPerSecond and MessageBurst bound overall inbound traffic
	// per connection; UpdatesPerSecond and UpdateBurst further bound
	// update-kind traffic specifically (editor clients pushing schema
	// edits), per the concurrency model's "100 msg/s / 10 updates/s"
	// limits.
	MessagesPerSecond float64
	MessageBurst      int
	UpdatesPerSecond  float64
	UpdateBurst       int
}

// DefaultConfig returns the protocol-mandated timings and limits: 60s
// heartbeat timeout, 10s write timeout, 5s join timeout, 10MiB framing
// buffers, 100 msg/s (burst 20) overall and 10 update/s (burst 5) for
// update-kind traffic.
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 60 * time.Second,
		WriteTimeout:     10 * time.Second,
		JoinTimeout:      5 * time.Second,
		ReadBufferSize:   10 * 1024 * 1024,
		WriteBufferSize:  10 * 1024 * 1024,
		MessagesPerSecond: 100,
		MessageBurst:      20,
		UpdatesPerSecond:  10,
		UpdateBurst:       5,
	}
}
