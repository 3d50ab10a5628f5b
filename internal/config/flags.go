package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/pinba/internal/transport"
)

// RegisterFlags registers the configuration flags on a cobra command as
// persistent flags, so every subcommand accepts them.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.PersistentFlags())
}

// configureFlags sets up all configuration flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Collector flags
	flags.Bool("enabled", true, "Send packets; when false flushes are skipped")
	flags.StringSliceP("server", "s", nil, "Collector address host[:port] (repeatable, default 127.0.0.1:30002)")
	flags.Duration("timeout", transport.DefaultTimeout, "Dial and write timeout per packet")
	flags.IntP("rate", "r", 0, "Packets per second limit (0 means unlimited)")

	// Request identity flags
	flags.String("hostname", "", "Hostname reported with the request (default: os hostname)")
	flags.String("server-name", "", "Server name reported with the request")
	flags.String("script-name", "", "Script name reported with the request")
	flags.String("schema", "", "Request schema, e.g. http or https")

	// Flush flags
	flags.Bool("auto-flush", false, "Flush when the measured request ends")
	flags.Bool("only-stopped", false, "Flush only stopped timers")
	flags.Bool("reset-data", false, "Reset the request after each flush")

	// Bench flags
	flags.IntP("concurrency", "c", 1, "Number of concurrent bench workers")
	flags.IntP("total", "t", 0, "Total number of packets to bench (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to bench (e.g. 30s, 1m)")
	flags.Bool("json-output", false, "Emit JSON formatted output")

	// Tracing flags
	flags.String("otlp-endpoint", "", "OTLP endpoint receiving run spans (default: $OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("otlp-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otlp-insecure", false, "Disable TLS towards the OTLP endpoint")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and the environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("enabled") {
		val, err := fs.GetBool("enabled")
		if err != nil {
			return err
		}
		cfg.Enabled = val
	}
	if fs.Changed("server") {
		val, err := fs.GetStringSlice("server")
		if err != nil {
			return err
		}
		cfg.Servers = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}

	strs := map[string]*string{
		"hostname":      &cfg.Hostname,
		"server-name":   &cfg.ServerName,
		"script-name":   &cfg.ScriptName,
		"schema":        &cfg.Schema,
		"otlp-endpoint": &cfg.OTLPEndpoint,
		"otlp-protocol": &cfg.OTLPProtocol,
	}
	for name, dst := range strs {
		if fs.Changed(name) {
			val, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	bools := map[string]*bool{
		"auto-flush":    &cfg.AutoFlush,
		"only-stopped":  &cfg.OnlyStopped,
		"reset-data":    &cfg.ResetData,
		"json-output":   &cfg.JSONOutput,
		"otlp-insecure": &cfg.OTLPInsecure,
	}
	for name, dst := range bools {
		if fs.Changed(name) {
			val, err := fs.GetBool(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	ints := map[string]*int{
		"rate":        &cfg.Rate,
		"concurrency": &cfg.Concurrency,
		"total":       &cfg.Total,
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			val, err := fs.GetInt(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}
	return nil
}
