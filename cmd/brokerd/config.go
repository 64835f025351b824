package main

import (
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/mdp"
	log "github.com/sirupsen/logrus"
)

// Config is the broker daemon's full configuration surface.
type Config struct {
	Frontend             string               `mapstructure:"frontend"`
	RegistrationEndpoint string               `mapstructure:"registration_endpoint"`
	HeartbeatInterval    time.Duration        `mapstructure:"heartbeat_interval"`
	HeartbeatLiveness    int                  `mapstructure:"heartbeat_liveness"`
	AcquisitionTimeout   time.Duration        `mapstructure:"acquisition_timeout"`
	SoftTimeout          time.Duration        `mapstructure:"soft_timeout"`
	Retries              int                  `mapstructure:"retries"`
	RetryBackoffMin      time.Duration        `mapstructure:"retry_backoff_min"`
	RetryBackoffMax      time.Duration        `mapstructure:"retry_backoff_max"`
	RetryBackoffMult     float64              `mapstructure:"retry_backoff_mult"`
	SocketHWM            int                  `mapstructure:"socket_hwm"`
	HealthPort           int                  `mapstructure:"health_port"`
	Log                  config.LogConfig     `mapstructure:"log"`
	Service              config.ServiceConfig `mapstructure:"service"`
}

// mdpConfig projects Config onto the mdp.Config shape NewBroker expects.
func (c *Config) mdpConfig() mdp.Config {
	return mdp.Config{
		Frontend:             c.Frontend,
		RegistrationEndpoint: c.RegistrationEndpoint,
		HeartbeatInterval:    c.HeartbeatInterval,
		HeartbeatLiveness:    c.HeartbeatLiveness,
		AcquisitionTimeout:   c.AcquisitionTimeout,
		SoftTimeout:          c.SoftTimeout,
		Retries:              c.Retries,
		RetryBackoffMin:      c.RetryBackoffMin,
		RetryBackoffMax:      c.RetryBackoffMax,
		RetryBackoffMult:     c.RetryBackoffMult,
		SocketHWM:            c.SocketHWM,
	}
}

var (
	lock     = &sync.Mutex{}
	instance *Config
)

var defaults = map[string]interface{}{
	"frontend":              "ipc:///tmp/dispatchd-frontend.ipc",
	"registration_endpoint": "ipc:///tmp/dispatchd-registration.ipc",
	"heartbeat_interval":    "2.5s",
	"heartbeat_liveness":    3,
	"acquisition_timeout":   "5s",
	"soft_timeout":          "2s",
	"retries":               3,
	"retry_backoff_min":     "50ms",
	"retry_backoff_max":     "2s",
	"retry_backoff_mult":    2.0,
	"socket_hwm":            1000,
	"health_port":           8080,
	"log.level":             "info",
	"log.formatter":         "text",
	"service.id":            "org.dispatchd.broker",
}

// GetConfig returns the broker daemon's configuration singleton.
func GetConfig() *Config {
	if instance == nil {
		lock.Lock()
		defer lock.Unlock()
		if instance == nil {
			if err := config.LoadConfigWithDefaults("brokerd", &instance, defaults); err != nil {
				log.Fatalf("error reading config file: %s\n", err)
			}
		}
	}
	return instance
}
