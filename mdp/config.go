package mdp

import "time"

// Config holds every tunable the dispatch engine and registration loop
// need. It has no file-format opinions of its own; cmd/brokerd loads its
// own Config from YAML/env via internal/config and projects it onto one of
// these for NewBroker.
type Config struct {
	// Frontend is the ROUTER endpoint clients dial.
	Frontend string `yaml:"frontend" mapstructure:"frontend"`
	// RegistrationEndpoint is the ROUTER endpoint workers dial.
	RegistrationEndpoint string `yaml:"registration_endpoint" mapstructure:"registration_endpoint"`

	// HeartbeatInterval is how often the frontend loop polls and the
	// reaper sweeps for expired workers. The registration loop polls at
	// the package-level HeartbeatInterval constant instead.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	// HeartbeatLiveness is the number of missed intervals tolerated
	// before an idle worker is purged.
	HeartbeatLiveness int `yaml:"heartbeat_liveness" mapstructure:"heartbeat_liveness"`

	// AcquisitionTimeout bounds how long a dispatch attempt blocks in
	// Registry.Checkout before failing with ErrNoWorker.
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout" mapstructure:"acquisition_timeout"`
	// SoftTimeout bounds how long the broker waits on a worker's reply
	// before treating the attempt as a timeout and evicting the worker.
	SoftTimeout time.Duration `yaml:"soft_timeout" mapstructure:"soft_timeout"`

	// Retries is the number of additional dispatch attempts after the
	// first, for retryable failures only.
	Retries          int           `yaml:"retries" mapstructure:"retries"`
	RetryBackoffMin  time.Duration `yaml:"retry_backoff_min" mapstructure:"retry_backoff_min"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" mapstructure:"retry_backoff_max"`
	RetryBackoffMult float64       `yaml:"retry_backoff_mult" mapstructure:"retry_backoff_mult"`

	// SocketHWM is a ZeroMQ high-water mark carried in configuration. It
	// is not applied to the broker's sockets, which keep the transport's
	// default high-water marks.
	SocketHWM int `yaml:"socket_hwm" mapstructure:"socket_hwm"`
}

// DefaultConfig returns a Config populated with the broker's baked-in
// defaults, the same values cmd/brokerd's viper defaults fall back to
// when a key is unset.
func DefaultConfig() Config {
	return Config{
		Frontend:             DefaultFrontend,
		RegistrationEndpoint: DefaultRegistration,

		HeartbeatInterval: HeartbeatInterval,
		HeartbeatLiveness: HeartbeatLiveness,

		AcquisitionTimeout: 5 * time.Second,
		SoftTimeout:        2 * time.Second,

		Retries:          3,
		RetryBackoffMin:  50 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		RetryBackoffMult: 2.0,

		SocketHWM: 1000,
	}
}
