package i2cscan

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AdapterPeriph  = "periph"
	AdapterMCP2221 = "mcp2221"
	AdapterGobot   = "gobot"
	AdapterSerial  = "serial"
)

// Config describes how to reach the bus and how often to sweep it. Not all
// fields apply to every adapter: Device/SCL/SDA/Frequency drive the periph
// transport, Port the serial bridge, GobotBus the gobot connector.
type Config struct {
	Adapter         string `yaml:"adapter"`
	Device          string `yaml:"device"`
	SCLPin          int    `yaml:"scl_pin"`
	SDAPin          int    `yaml:"sda_pin"`
	FrequencyHz     int    `yaml:"frequency_hz"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Port            string `yaml:"port"`
	GobotBus        int    `yaml:"gobot_bus"`
}

// Interval is the pause between sweeps.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		Adapter:         AdapterPeriph,
		Device:          "/dev/i2c-1",
		SCLPin:          22,
		SDAPin:          21,
		FrequencyHz:     100_000,
		IntervalSeconds: 5,
		Port:            "/dev/ttyUSB0",
	}
}

// LoadConfig reads a yaml file on top of DefaultConfig. Fields absent from
// the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("could not read config file: %w", err)
	}
	err = yaml.Unmarshal(raw, &config)
	if err != nil {
		return config, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return config, nil
}
