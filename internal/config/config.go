package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AcceptConfig configures lb-accept.
type AcceptConfig struct {
	Host        string  `yaml:"host"`
	Port        int     `yaml:"port"`
	BufferSize  int     `yaml:"buffer_size"`
	MaxThreads  int     `yaml:"max_threads"`
	IdleTimeout float64 `yaml:"idle_timeout"`
	LogLevel    string  `yaml:"log_level"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

// ChurnConfig configures lb-churn.
type ChurnConfig struct {
	Host              string  `yaml:"host"`
	Port              int     `yaml:"port"`
	MaxConnections    int     `yaml:"max_connections"`
	ConnectionTimeout float64 `yaml:"connection_timeout"`
	Runtime           float64 `yaml:"runtime"`
	NumThreads        int     `yaml:"num_threads"`
	Seed              uint64  `yaml:"seed"`
	LogLevel          string  `yaml:"log_level"`
	MetricsAddr       string  `yaml:"metrics_addr"`
}

// DefaultAccept returns the lb-accept defaults.
func DefaultAccept() AcceptConfig {
	return AcceptConfig{
		Host:       "0.0.0.0",
		Port:       8000,
		BufferSize: 1024,
		MaxThreads: 100,
		LogLevel:   "info",
	}
}

// DefaultChurn returns the lb-churn defaults.
func DefaultChurn() ChurnConfig {
	return ChurnConfig{
		Host:              "10.0.1.2",
		Port:              3000,
		MaxConnections:    10,
		ConnectionTimeout: 5.0,
		Runtime:           30.0,
		NumThreads:        1,
		LogLevel:          "info",
	}
}

// LoadAccept reads a YAML file over the lb-accept defaults.
func LoadAccept(path string) (AcceptConfig, error) {
	cfg := DefaultAccept()
	err := loadFile(path, &cfg)
	return cfg, err
}

// LoadChurn reads a YAML file over the lb-churn defaults.
func LoadChurn(path string) (ChurnConfig, error) {
	cfg := DefaultChurn()
	err := loadFile(path, &cfg)
	return cfg, err
}

// loadFile decodes path into out, rejecting unknown keys.
func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{File: path, Message: "failed to read file", Cause: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &Error{File: path, Message: "failed to parse YAML", Cause: err}
	}
	return nil
}

// Address returns the bind address.
func (c AcceptConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IdleTimeoutDuration returns IdleTimeout as a time.Duration.
func (c AcceptConfig) IdleTimeoutDuration() time.Duration {
	return seconds(c.IdleTimeout)
}

// Validate checks every field.
func (c AcceptConfig) Validate() error {
	if c.Host == "" {
		return invalid("host", "must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return invalid("port", fmt.Sprintf("must be 0-65535, got %d", c.Port))
	}
	if c.BufferSize <= 0 {
		return invalid("buffer_size", fmt.Sprintf("must be positive, got %d", c.BufferSize))
	}
	if c.MaxThreads <= 0 {
		return invalid("max_threads", fmt.Sprintf("must be positive, got %d", c.MaxThreads))
	}
	if c.IdleTimeout < 0 {
		return invalid("idle_timeout", fmt.Sprintf("must not be negative, got %g", c.IdleTimeout))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Address returns the target address.
func (c ChurnConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConnectTimeout returns ConnectionTimeout as a time.Duration.
func (c ChurnConfig) ConnectTimeout() time.Duration {
	return seconds(c.ConnectionTimeout)
}

// RuntimeDuration returns Runtime as a time.Duration.
func (c ChurnConfig) RuntimeDuration() time.Duration {
	return seconds(c.Runtime)
}

// Validate checks every field.
func (c ChurnConfig) Validate() error {
	if c.Host == "" {
		return invalid("host", "must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return invalid("port", fmt.Sprintf("must be 1-65535, got %d", c.Port))
	}
	if c.MaxConnections < 1 {
		return invalid("max_connections", fmt.Sprintf("must be at least 1, got %d", c.MaxConnections))
	}
	if c.ConnectionTimeout <= 0 {
		return invalid("connection_timeout", fmt.Sprintf("must be positive, got %g", c.ConnectionTimeout))
	}
	if c.Runtime <= 0 {
		return invalid("runtime", fmt.Sprintf("must be positive, got %g", c.Runtime))
	}
	if c.NumThreads < 1 {
		return invalid("num_threads", fmt.Sprintf("must be at least 1, got %d", c.NumThreads))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, invalid("log_level", fmt.Sprintf("unknown level %q", s))
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
