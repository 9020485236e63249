// Package config loads the vmboot YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-vmboot/bootloader"
	"github.com/moffa90/go-vmboot/flash"
	"github.com/moffa90/go-vmboot/protocol"
	"github.com/moffa90/go-vmboot/transport"
)

// Config holds the vmboot configuration.
type Config struct {
	SessionTimeoutMs       uint32 `yaml:"session_timeout_ms"`
	FrameTimeoutMs         uint32 `yaml:"frame_timeout_ms"`
	TargetFlashPageAddress uint32 `yaml:"target_flash_page_address"`
	FlashPageSize          uint32 `yaml:"flash_page_size"`
	WriteAlignment         int    `yaml:"write_alignment"`
	MaxPayloadSize         int    `yaml:"max_payload_size"`
	Version                string `yaml:"version"`
	PollIntervalMs         uint32 `yaml:"poll_interval_ms"`
	MaxRecoverableErrors   int    `yaml:"max_recoverable_errors"`
	Serial                 Serial `yaml:"serial"`
	LogLevel               string `yaml:"log_level"`
	FlashImage             string `yaml:"flash_image"`
}

// Serial holds the serial port settings.
type Serial struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs uint32 `yaml:"read_timeout_ms"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	layout := flash.DefaultLayout()
	return &Config{
		SessionTimeoutMs:       uint32(bootloader.DefaultSessionTimeout / time.Millisecond),
		FrameTimeoutMs:         uint32(bootloader.DefaultFrameTimeout / time.Millisecond),
		TargetFlashPageAddress: layout.PageAddress,
		FlashPageSize:          layout.PageSize,
		WriteAlignment:         layout.WriteAlignment,
		MaxPayloadSize:         protocol.MaxPayloadSize,
		Version:                bootloader.DefaultVersion,
		PollIntervalMs:         uint32(bootloader.DefaultPollInterval / time.Millisecond),
		MaxRecoverableErrors:   bootloader.DefaultMaxRecoverableErrors,
		Serial: Serial{
			Baud:          transport.DefaultBaudRate,
			ReadTimeoutMs: 100,
		},
		LogLevel:   "info",
		FlashImage: "vmboot-flash.bin",
	}
}

// DefaultPath returns the default config file path: ~/.vmboot/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".vmboot", "config.yaml")
	}
	return filepath.Join(home, ".vmboot", "config.yaml")
}

// Load reads the configuration from the given YAML file path. Keys absent
// from the file keep their defaults. If the file does not exist, it returns
// the default Config with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Layout returns the flash layout described by the configuration.
func (c *Config) Layout() flash.Layout {
	return flash.Layout{
		PageAddress:    c.TargetFlashPageAddress,
		PageSize:       c.FlashPageSize,
		WriteAlignment: c.WriteAlignment,
	}
}

// SerialConfig returns the serial port settings for transport.OpenSerial.
func (c *Config) SerialConfig() transport.SerialConfig {
	return transport.SerialConfig{
		Port:        c.Serial.Port,
		BaudRate:    c.Serial.Baud,
		ReadTimeout: time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond,
	}
}

// BootloaderOptions converts the configuration into runtime options.
// Validation happens in bootloader.Runtime.Init.
func (c *Config) BootloaderOptions() []bootloader.Option {
	return []bootloader.Option{
		bootloader.WithSessionTimeout(time.Duration(c.SessionTimeoutMs) * time.Millisecond),
		bootloader.WithFrameTimeout(time.Duration(c.FrameTimeoutMs) * time.Millisecond),
		bootloader.WithFlashLayout(c.Layout()),
		bootloader.WithMaxPayloadSize(c.MaxPayloadSize),
		bootloader.WithVersion(c.Version),
		bootloader.WithPollInterval(time.Duration(c.PollIntervalMs) * time.Millisecond),
		bootloader.WithMaxRecoverableErrors(c.MaxRecoverableErrors),
	}
}
