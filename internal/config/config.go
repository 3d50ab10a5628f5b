package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/pinba/internal/session"
	"github.com/torosent/pinba/internal/tracing"
	"github.com/torosent/pinba/internal/transport"
)

// Config is the resolved configuration of the pinba command line.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Servers     []string      `mapstructure:"servers"`
	Hostname    string        `mapstructure:"hostname"`
	ServerName  string        `mapstructure:"server_name"`
	ScriptName  string        `mapstructure:"script_name"`
	Schema      string        `mapstructure:"schema"`
	AutoFlush   bool          `mapstructure:"auto_flush"`
	OnlyStopped bool          `mapstructure:"only_stopped"`
	ResetData   bool          `mapstructure:"reset_data"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Rate        int           `mapstructure:"rate"`
	Concurrency int           `mapstructure:"concurrency"`
	Total       int           `mapstructure:"total"`
	Duration    time.Duration `mapstructure:"duration"`
	JSONOutput  bool          `mapstructure:"json_output"`
	ConfigFile  string        `mapstructure:"-"`

	// OTLP backend for the spans of the run command. An empty endpoint
	// defers to OTEL_EXPORTER_OTLP_ENDPOINT.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPProtocol string `mapstructure:"otlp_protocol"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Enabled:     true,
		Servers:     []string{fmt.Sprintf("127.0.0.1:%d", transport.DefaultPort)},
		Timeout:     transport.DefaultTimeout,
		Concurrency: 1,
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Enabled && len(c.Servers) == 0 {
		issues = append(issues, "at least one server is required when pinba is enabled")
	}
	for _, s := range c.Servers {
		if _, err := transport.ParseTarget(s); err != nil {
			issues = append(issues, fmt.Sprintf("server %q: %v", s, err))
		}
	}

	if c.Rate > 10000 {
		fmt.Fprintf(os.Stderr, "WARNING: High send rate configured (%d packets/s). Collectors drop datagrams they cannot keep up with.\n", c.Rate)
	}

	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be non-negative")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if c.Total < 0 {
		issues = append(issues, "total must be non-negative")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be non-negative")
	}
	switch strings.ToLower(c.OTLPProtocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("otlp protocol %q must be grpc or http", c.OTLPProtocol))
	}
	if strings.ContainsAny(c.Schema, " \t\n") {
		issues = append(issues, fmt.Sprintf("schema %q must not contain whitespace", c.Schema))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Flags converts the flush related switches into a session flag mask.
func (c Config) Flags() session.Flag {
	var f session.Flag
	if c.OnlyStopped {
		f |= session.FlushOnlyStoppedTimers
	}
	if c.ResetData {
		f |= session.FlushResetData
	}
	if c.AutoFlush {
		f |= session.AutoFlush
	}
	return f
}

// Targets returns the normalized collector addresses.
func (c Config) Targets() ([]string, error) {
	out := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		addr, err := transport.ParseTarget(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Tracing returns the OTLP settings for the tracing provider.
func (c Config) Tracing() tracing.OTLPConfig {
	return tracing.OTLPConfig{
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
	}
}
