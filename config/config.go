package config

import (
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// Configuration struct
type Configuration struct {
	LogLevel         int    `yaml:"log_level"`
	SentryDSN        string `yaml:"sentry_dsn"`
	LarkAlarmWebhook string `yaml:"lark_alarm_webhook"`
	Bridge           Bridge `yaml:"bridge"`
}

// Bridge tunes the relay bridge transport used by the remote provider.
type Bridge struct {
	// URL of the relay bridge. Empty picks a random public shard.
	URL string `yaml:"url"`
	// ReadTimeoutSec bounds a single websocket read.
	ReadTimeoutSec int `yaml:"read_timeout_sec"`
	// RequestTimeoutSec bounds one JSON-RPC round trip.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
	// MaxInflightRequests caps concurrent JSON-RPC requests on one connection.
	MaxInflightRequests int `yaml:"max_inflight_requests"`
	// RequestsPerSecond paces request writes against the bridge.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

func (in Bridge) ReadTimeout() time.Duration {
	if in.ReadTimeoutSec <= 0 {
		return time.Minute * 5
	}
	return time.Duration(in.ReadTimeoutSec) * time.Second
}

func (in Bridge) RequestTimeout() time.Duration {
	if in.RequestTimeoutSec <= 0 {
		return time.Second * 30
	}
	return time.Duration(in.RequestTimeoutSec) * time.Second
}

var Global = Default()

// Default returns the configuration used when no file is loaded.
func Default() *Configuration {
	return &Configuration{
		LogLevel: 1,
		Bridge: Bridge{
			MaxInflightRequests: 4,
			RequestsPerSecond:   10,
		},
	}
}

// Load reads configuration from a yaml file and installs it as Global.
func Load(path string) error {
	log.Infof("Loading configuration file from %s", path)
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read configuration file")
	}
	conf := Default()
	if err := yaml.Unmarshal(dat, conf); err != nil {
		return errors.Wrap(err, "decode configuration file")
	}
	log.SetLevel(conf.LogLevel)
	Global = conf
	return nil
}
