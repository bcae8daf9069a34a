package firmware

import (
	"bytes"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/wifista/pkg/radio"
)

// Config is the firmware configuration. The defaults are compiled in
// from firmware.yaml.
type Config struct {
	Credentials radio.Credentials `yaml:"credentials"`
	// Channel restricts the scan, 0 means all channels.
	Channel  uint8  `yaml:"channel"`
	Hostname string `yaml:"hostname"`

	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
	LivenessPeriod  time.Duration `yaml:"liveness_period"`
	GraceDelay      time.Duration `yaml:"grace_delay"`
	RetryDelay      time.Duration `yaml:"retry_delay"`

	// TaskCapacity is the size of the scheduler task table.
	TaskCapacity    int    `yaml:"task_capacity"`
	SocketResources int    `yaml:"socket_resources"`
	Seed            uint64 `yaml:"seed"`

	// DeviceID identifies the device on the diagnostic uplink.
	DeviceID string `yaml:"device_id"`
}

//go:embed firmware.yaml
var builtinConfig []byte

var defaultConfig Config

func init() {
	conf, err := LoadConfig(builtinConfig)
	if err != nil {
		log.Fatalln("built-in firmware config:", err)
	}
	defaultConfig = *conf
	if val := os.Getenv("WIFISTA_SSID"); val != "" {
		defaultConfig.Credentials.SSID = val
	}
	if val := os.Getenv("WIFISTA_PASSPHRASE"); val != "" {
		defaultConfig.Credentials.Passphrase = val
	}
	if val := os.Getenv("WIFISTA_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if defaultConfig.DeviceID == "" {
		defaultConfig.DeviceID = DeviceID()
	}
}

// LoadConfig decodes a YAML document and validates it.
func LoadConfig(data []byte) (*Config, error) {
	var conf Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return nil, fmt.Errorf("decode firmware config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	switch {
	case c.HeartbeatPeriod <= 0:
		return errors.New("heartbeat_period must be positive")
	case c.LivenessPeriod <= 0:
		return errors.New("liveness_period must be positive")
	case c.GraceDelay <= 0:
		return errors.New("grace_delay must be positive")
	case c.RetryDelay <= 0:
		return errors.New("retry_delay must be positive")
	case c.TaskCapacity <= 0:
		return errors.New("task_capacity must be positive")
	case c.SocketResources <= 0:
		return errors.New("socket_resources must be positive")
	}
	return nil
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Credentials.SSID, "ssid", defaultConfig.Credentials.SSID, "SSID of the access point.")
	flag.StringVar(&defaultConfig.Credentials.Passphrase, "passphrase", defaultConfig.Credentials.Passphrase, "Passphrase of the access point.")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID reported on the diagnostic uplink.")
	flag.DurationVar(&defaultConfig.HeartbeatPeriod, "heartbeat", defaultConfig.HeartbeatPeriod, "Heartbeat period.")
	flag.DurationVar(&defaultConfig.LivenessPeriod, "liveness", defaultConfig.LivenessPeriod, "Boot liveness period.")
	flag.DurationVar(&defaultConfig.GraceDelay, "grace-delay", defaultConfig.GraceDelay, "Delay after a disconnect before reconnecting.")
	flag.DurationVar(&defaultConfig.RetryDelay, "retry-delay", defaultConfig.RetryDelay, "Delay after a failed connect.")
	flag.IntVar(&defaultConfig.TaskCapacity, "tasks", defaultConfig.TaskCapacity, "Size of the task table.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}
