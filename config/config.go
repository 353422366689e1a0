// Package config loads and saves the engine configuration, including
// the persisted test suite.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Nistp/SerialTerminalGUI/serialio"
	"github.com/Nistp/SerialTerminalGUI/testsuite"
)

// LineEndings maps the configured convention to the bytes appended to
// every outbound command.
var LineEndings = map[string][]byte{
	"None": nil,
	"CR":   []byte("\r"),
	"LF":   []byte("\n"),
	"CRLF": []byte("\r\n"),
}

// MQTT configures the optional result publisher.
type MQTT struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix"`
}

// Config is the persisted application configuration.
type Config struct {
	Port       string `json:"port"`
	Baud       int    `json:"baud"`
	Parity     string `json:"parity"`
	DataBits   int    `json:"databits"`
	StopBits   string `json:"stopbits"`
	LineEnding string `json:"line_ending"`

	// Secondary fire-and-forget trigger port, optional.
	TriggerPort string `json:"trigger_port,omitempty"`
	TriggerBaud int    `json:"trigger_baud,omitempty"`

	LogDir         string `json:"log_dir"`
	PollIntervalMS int    `json:"poll_interval_ms"`
	TestDelayMS    int    `json:"test_delay_ms"`

	Listen string `json:"listen,omitempty"`
	MQTT   *MQTT  `json:"mqtt,omitempty"`

	Tests []testsuite.TestCase `json:"tests"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Baud:           115200,
		Parity:         "N",
		DataBits:       8,
		StopBits:       "1",
		LineEnding:     "CRLF",
		PollIntervalMS: 50,
		TestDelayMS:    200,
	}
}

// Load reads path and merges it over the defaults. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LineEndingBytes resolves the configured line-ending convention.
func (c *Config) LineEndingBytes() []byte {
	if le, ok := LineEndings[c.LineEnding]; ok {
		return le
	}
	return LineEndings["CRLF"]
}

// PortConfig builds the transport parameters for the main port.
func (c *Config) PortConfig() serialio.PortConfig {
	return serialio.PortConfig{
		Name:       c.Port,
		Baud:       c.Baud,
		Parity:     c.Parity,
		DataBits:   c.DataBits,
		StopBits:   c.StopBits,
		LineEnding: c.LineEndingBytes(),
	}
}

// TriggerPortConfig builds the transport parameters for the trigger
// port, valid only when TriggerPort is set.
func (c *Config) TriggerPortConfig() serialio.PortConfig {
	baud := c.TriggerBaud
	if baud == 0 {
		baud = c.Baud
	}
	return serialio.PortConfig{
		Name:       c.TriggerPort,
		Baud:       baud,
		Parity:     "N",
		DataBits:   8,
		StopBits:   "1",
		LineEnding: c.LineEndingBytes(),
	}
}

// EffectiveLogDir is LogDir, or ~/serial_logs when unset.
func (c *Config) EffectiveLogDir() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "serial_logs"
	}
	return filepath.Join(home, "serial_logs")
}
