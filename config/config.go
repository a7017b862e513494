// Package config loads the bootstrapper settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Serial struct {
	// Device is the console cable, e.g. /dev/ttyUSB0
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Timeout is how long the device may stay silent before the session
	// is given up and the next device is waited for
	Timeout time.Duration `yaml:"timeout"`
}

type Sounds struct {
	Dir               string `yaml:"dir"`
	Detected          string `yaml:"detected"`
	Unsupported       string `yaml:"unsupported"`
	Reset             string `yaml:"reset"`
	UnsupportedRepeat int    `yaml:"unsupported_repeat"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Web struct {
	// Listen is empty when the status page is off
	Listen string `yaml:"listen"`
}

type TFTP struct {
	Listen string `yaml:"listen"`
	Root   string `yaml:"root"`
}

type Config struct {
	Serial       Serial `yaml:"serial"`
	BreakCount   int    `yaml:"break_count"`
	VersionQuery bool   `yaml:"version_query"`
	Sounds       Sounds `yaml:"sounds"`
	Log          Log    `yaml:"log"`
	// Transcript is a file every console byte is recorded to, if set
	Transcript string `yaml:"transcript"`
	Web        Web    `yaml:"web"`
	TFTP       TFTP   `yaml:"tftp"`
}

func Default() *Config {
	return &Config{
		Serial: Serial{
			Device:  "/dev/ttyUSB0",
			Baud:    9600,
			Timeout: 600 * time.Second,
		},
		BreakCount:   3,
		VersionQuery: true,
		Sounds: Sounds{
			Detected:          "detected.wav",
			Unsupported:       "reset.wav",
			Reset:             "reset.wav",
			UnsupportedRepeat: 3,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Parse reads YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the config at path. A missing file gives the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device must be set"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("serial.timeout must be positive, got %s", c.Serial.Timeout))
	}
	if c.BreakCount <= 0 {
		errs = append(errs, fmt.Errorf("break_count must be positive, got %d", c.BreakCount))
	}
	if c.Sounds.UnsupportedRepeat < 0 {
		errs = append(errs, fmt.Errorf("sounds.unsupported_repeat must not be negative, got %d", c.Sounds.UnsupportedRepeat))
	}
	if c.TFTP.Listen != "" && c.TFTP.Root == "" {
		errs = append(errs, errors.New("tftp.root must be set when tftp.listen is"))
	}
	return errors.Join(errs...)
}
