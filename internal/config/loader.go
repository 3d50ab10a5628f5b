package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by the Loader, for
// example PINBA_SERVERS or PINBA_SCRIPT_NAME.
const EnvPrefix = "PINBA"

// Loader handles loading configuration from files, the environment and
// command-line flags, in increasing order of precedence.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("pinba", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	return l.LoadFlags(fs)
}

// LoadFlags resolves a Config from a parsed flag set carrying the flags of
// RegisterFlags.
func (Loader) LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	configPath, _ := fs.GetString("config")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applySettings(&cfg, v); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}

	cfg.Hostname = strings.TrimSpace(cfg.Hostname)
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	cfg.OTLPEndpoint = strings.TrimSpace(cfg.OTLPEndpoint)
	return &cfg, nil
}

// lookup returns the first of the candidate keys set in the file or the
// environment. The php.ini style "pinba.<key>" spelling is accepted too.
func lookup(v *viper.Viper, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, "pinba." + key} {
			if v.IsSet(k) {
				return v.Get(k), true
			}
		}
	}
	return nil, false
}

// applySettings applies file and environment settings to the Config struct.
func applySettings(cfg *Config, v *viper.Viper) error {
	if raw, ok := lookup(v, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		cfg.Enabled = val
	}

	if raw, ok := lookup(v, "servers", "server"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("servers: %w", err)
		}
		cfg.Servers = val
	}

	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"hostname"}, &cfg.Hostname},
		{[]string{"server_name", "servername"}, &cfg.ServerName},
		{[]string{"script_name", "scriptname"}, &cfg.ScriptName},
		{[]string{"schema"}, &cfg.Schema},
		{[]string{"otlp_endpoint"}, &cfg.OTLPEndpoint},
		{[]string{"otlp_protocol"}, &cfg.OTLPProtocol},
	}
	for _, s := range strs {
		if raw, ok := lookup(v, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"auto_flush", "autoflush"}, &cfg.AutoFlush},
		{[]string{"only_stopped", "onlystopped"}, &cfg.OnlyStopped},
		{[]string{"reset_data", "resetdata"}, &cfg.ResetData},
		{[]string{"json_output", "jsonoutput"}, &cfg.JSONOutput},
		{[]string{"otlp_insecure"}, &cfg.OTLPInsecure},
	}
	for _, b := range bools {
		if raw, ok := lookup(v, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.keys[0], err)
			}
			*b.dst = val
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"rate", &cfg.Rate},
		{"concurrency", &cfg.Concurrency},
		{"total", &cfg.Total},
	}
	for _, i := range ints {
		if raw, ok := lookup(v, i.key); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = val
		}
	}

	if raw, ok := lookup(v, "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = val
	}
	if raw, ok := lookup(v, "duration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = val
	}
	return nil
}
