package main

import (
	"fmt"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/torosent/pinba/internal/config"
	"github.com/torosent/pinba/internal/logx"
	"github.com/torosent/pinba/internal/session"
	"github.com/torosent/pinba/internal/transport"
)

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	cfg     *config.Config
	verbose bool
	log     logx.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "pinba",
		Short:             "Measure requests and report them to Pinba collectors",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	config.RegisterFlags(root)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose log output")

	root.AddCommand(
		sendSubcommand(a),
		dumpSubcommand(a),
		runSubcommand(a),
		schemaSubcommand(a),
		benchSubcommand(a),
	)
	return root
}

// setup installs the logger and resolves the configuration.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	log.SetHandler(cli.New(cmd.ErrOrStderr()))
	if a.verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	a.log = logx.Default()

	cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		log.Debugf("read configuration from %s", cfg.ConfigFile)
	}
	a.cfg = cfg
	return nil
}

func (a *app) udpOptions() []transport.UDPOption {
	return []transport.UDPOption{
		transport.WithTimeout(a.cfg.Timeout),
		transport.WithRate(a.cfg.Rate),
		transport.WithLogger(a.log),
	}
}

// sender builds one UDP sender per configured server.
func (a *app) sender() (transport.Multi, error) {
	var multi transport.Multi
	for _, server := range a.cfg.Servers {
		u, err := transport.NewUDP(server, a.udpOptions()...)
		if err != nil {
			return nil, err
		}
		multi = append(multi, u)
	}
	return multi, nil
}

func (a *app) newClient() (*session.Client, error) {
	c, err := session.NewClient(a.cfg.Servers, a.cfg.Flags(),
		session.WithLogger(a.log),
		session.WithUDPOptions(transport.WithTimeout(a.cfg.Timeout), transport.WithRate(a.cfg.Rate)),
	)
	if err != nil {
		return nil, err
	}
	a.identify(c)
	return c, nil
}

// identifier is implemented by both Session and Client.
type identifier interface {
	SetHostname(string)
	SetServerName(string)
	SetScriptName(string)
	SetSchema(string)
}

// identify applies the configured request names.
func (a *app) identify(dst identifier) {
	if a.cfg.Hostname != "" {
		dst.SetHostname(a.cfg.Hostname)
	}
	if a.cfg.ServerName != "" {
		dst.SetServerName(a.cfg.ServerName)
	}
	if a.cfg.ScriptName != "" {
		dst.SetScriptName(a.cfg.ScriptName)
	}
	if a.cfg.Schema != "" {
		dst.SetSchema(a.cfg.Schema)
	}
}

// exitCodeError carries the exit status of a measured command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}
