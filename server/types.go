package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-rt/control"
)

// HandlerMode selects the connection handler implementation.
type HandlerMode string

const (
	// HandlerState runs each connection as an explicit state machine.
	HandlerState HandlerMode = "state"
	// HandlerChain composes each connection from chained poll closures.
	HandlerChain HandlerMode = "chain"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string            `yaml:"listen_addr"`      // TCP bind address, e.g. "127.0.0.1:3000"
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // drain deadline after stop is requested
	Handler         HandlerMode       `yaml:"handler"`          // state | chain
	HandleSignals   bool              `yaml:"handle_signals"`   // SIGINT/SIGTERM start a graceful shutdown
	ReadBufferSize  int               `yaml:"read_buffer_size"` // per-connection request buffer
	InboxCapacity   int               `yaml:"inbox_capacity"`   // scheduler remote wake inbox
	CPU             int               `yaml:"cpu"`              // pin the loop thread to this CPU (-1 = no pinning)
	MetricsAddr     string            `yaml:"metrics_addr"`     // empty disables /metrics
	Log             control.LogConfig `yaml:"log"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:3000",
		ShutdownTimeout: time.Second,
		Handler:         HandlerState,
		HandleSignals:   true,
		ReadBufferSize:  1024,
		InboxCapacity:   4096,
		CPU:             -1,
		Log:             control.DefaultLogConfig(),
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	switch c.Handler {
	case HandlerState, HandlerChain:
	default:
		errs = append(errs, fmt.Errorf("unknown handler %q", c.Handler))
	}
	if c.ReadBufferSize < len(requestTerminator) {
		errs = append(errs, fmt.Errorf("read_buffer_size too small: %d", c.ReadBufferSize))
	}
	if c.InboxCapacity < 1 {
		errs = append(errs, fmt.Errorf("inbox_capacity must be positive, got %d", c.InboxCapacity))
	}
	if c.CPU < -1 {
		errs = append(errs, fmt.Errorf("cpu must be -1 or a CPU index, got %d", c.CPU))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := control.LoadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
