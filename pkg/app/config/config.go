package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/export"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/manchester"
	"github.com/BurntSushi/toml"
	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

const (
	SourceGpio   = "gpio"
	SourceFile   = "file"
	SourceSerial = "serial"
)

var (
	ErrInvalidBitRate = errors.New("invalid bit rate")
	ErrInvalidSource  = errors.New("invalid input source")
	ErrInvalidFlag    = errors.New("invalid debug flag")
)

// Config holds the application configuration. Attention!
// Each of the struct fields must be in the format
// first letter uppercase -> followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag      FlagConfig      `yaml:"-" toml:"-"`
	Input     InputConfig     `yaml:"input" toml:"input"`
	Decoder   DecoderConfig   `yaml:"decoder" toml:"decoder"`
	Results   ResultsConfig   `yaml:"results" toml:"results"`
	Debug     DebugConfig     `yaml:"debug" toml:"debug"`
	Webserver WebserverConfig `yaml:"webserver" toml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	Debug      string
	ConfigFile string
}

// InputConfig defines where the transitions of the AUX line come from.
type InputConfig struct {
	// Source is gpio, file or serial.
	Source string `yaml:"source" toml:"source"`
	// Driver is the gpio driver gpiod or gpiomem.
	Driver     string `yaml:"driver" toml:"driver"`
	Gpio       int    `yaml:"gpio" toml:"gpio"`
	Terminator string `yaml:"terminator" toml:"terminator"`
	File       string `yaml:"file" toml:"file"`
	Port       string `yaml:"port" toml:"port"`
	BaudRate   int    `yaml:"baudrate" toml:"baudrate"`
	// SampleRate overwrites the sample rate of a capture file, 0 uses the capture header.
	SampleRate uint32 `yaml:"samplerate" toml:"samplerate"`
}

// DecoderConfig defines the line settings of the decoder.
type DecoderConfig struct {
	BitRate         uint32               `yaml:"bitrate" toml:"bitrate"`
	Inverted        bool                 `yaml:"inverted" toml:"inverted"`
	ToleranceString string               `yaml:"tolerance" toml:"tolerance"`
	Tolerance       manchester.Tolerance `yaml:"-" toml:"-"`
	SyncBits        uint32               `yaml:"syncbits" toml:"syncbits"`
}

// ResultsConfig defines how many frames are kept and how data bytes are shown.
type ResultsConfig struct {
	Limit      int         `yaml:"limit" toml:"limit"`
	BaseString string      `yaml:"base" toml:"base"`
	Base       export.Base `yaml:"-" toml:"-"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url" toml:"url"`
	Webservices map[string]bool `yaml:"webservices" toml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection" toml:"connection"`
	ClientID   string `yaml:"clientid" toml:"clientid"`
	Topic      string `yaml:"topic" toml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-" toml:"-"`
	Flag       int            `yaml:"-" toml:"-"`
	FlagString string         `yaml:"flag" toml:"flag"`
	FileString string         `yaml:"file" toml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Flag: FlagConfig{},
		Input: InputConfig{
			Source:     SourceGpio,
			Driver:     "gpiod",
			Gpio:       17,
			Terminator: "none",
			BaudRate:   115200,
		},
		Decoder: DecoderConfig{
			BitRate:         1000000,
			ToleranceString: "25%",
			SyncBits:        auxbus.DefaultSyncBits,
		},
		Results: ResultsConfig{
			Limit:      100000,
			BaseString: "hex",
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version":  true,
				"health":   true,
				"frames":   true,
				"markers":  true,
				"dump":     true,
				"progress": true,
			},
		},
		MQTT: MQTTConfig{
			ClientID: "dpaux",
			Topic:    "dpaux/frames",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	return c.Convert()
}

// Convert converts the string fields of the configuration file to their typed fields and validates the result.
func (c *Config) Convert() (err error) {
	if c.Decoder.Tolerance, err = manchester.ParseTolerance(c.Decoder.ToleranceString); err != nil {
		return err
	}
	if c.Results.Base, err = export.ParseBase(c.Results.BaseString); err != nil {
		return err
	}

	return c.Validate()
}

// Validate checks the decoder and input settings.
func (c *Config) Validate() error {
	if c.Decoder.BitRate < 1 || c.Decoder.BitRate > auxbus.MaxBitRate {
		return fmt.Errorf("%w: %d bit/s (1..%d)", ErrInvalidBitRate, c.Decoder.BitRate, auxbus.MaxBitRate)
	}

	switch c.Input.Source {
	case SourceGpio:
	case SourceFile:
		if c.Input.File == "" {
			return fmt.Errorf("%w: source %s needs a file", ErrInvalidSource, c.Input.Source)
		}
	case SourceSerial:
		if c.Input.Port == "" || c.Input.BaudRate <= 0 {
			return fmt.Errorf("%w: source %s needs a port and a baud rate", ErrInvalidSource, c.Input.Source)
		}
	default:
		return fmt.Errorf("%w: %q (%s|%s|%s)", ErrInvalidSource, c.Input.Source, SourceGpio, SourceFile, SourceSerial)
	}

	return nil
}

// AuxConfig returns the decoder settings for a capture with sampleRate.
func (c *Config) AuxConfig(sampleRate uint32) auxbus.Config {
	return auxbus.Config{
		BitRate:    c.Decoder.BitRate,
		SampleRate: sampleRate,
		Inverted:   c.Decoder.Inverted,
		Tolerance:  c.Decoder.Tolerance,
		SyncBits:   c.Decoder.SyncBits,
	}
}

// readConfigFile decodes TOML files by the .toml extension and YAML files otherwise.
func (c *Config) readConfigFile() error {
	if strings.EqualFold(filepath.Ext(c.Flag.ConfigFile), ".toml") {
		_, err := toml.DecodeFile(c.Flag.ConfigFile, c)
		return err
	}

	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

// ParseDebugFlag converts the log level standard, debug or trace to the flag of debug.SetDebug.
func ParseDebugFlag(s string) (int, error) {
	switch s {
	case "trace", "full":
		return debug.Full, nil
	case "debug":
		return debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug, nil
	case "standard":
		return debug.Standard, nil
	default:
		return 0, fmt.Errorf("%w: %q (standard|debug|trace)", ErrInvalidFlag, s)
	}
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	if c.Debug.Flag, err = ParseDebugFlag(c.Debug.FlagString); err != nil {
		return
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}

// Close closes the debug file opened by LoadConfig. Stderr and stdout stay open.
func (d *DebugConfig) Close() error {
	if d.File == nil || d.File == os.Stderr || d.File == os.Stdout {
		return nil
	}
	return d.File.Close()
}
