package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/torosent/pinba/internal/session"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/tracing"
)

func runSubcommand(a *app) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command and report it as one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCommand(cmd, group, args)
		},
	}
	cmd.Flags().StringVar(&group, "group", "exec", "Value of the group tag on the command timer")
	return cmd
}

func (a *app) runCommand(cmd *cobra.Command, group string, args []string) error {
	ctx := cmd.Context()
	name := filepath.Base(args[0])

	opts := []session.Option{
		session.WithLogger(a.log),
		session.WithFlags(a.cfg.Flags()),
	}
	if a.cfg.Enabled {
		sender, err := a.sender()
		if err != nil {
			return err
		}
		opts = append(opts, session.WithSender(sender))
	}
	sess := session.New(opts...)
	a.identify(sess)

	provider, err := tracing.Init(ctx, sess, a.cfg.Tracing(),
		tracing.WithAttributes("process.executable.name", "process.exit.code"),
		tracing.WithExporterLogger(a.log),
	)
	if err != nil {
		return err
	}
	provider.Install()
	defer provider.Shutdown(context.WithoutCancel(ctx))

	spanCtx, span := tracing.StartCommandSpan(ctx, provider.Tracer(), name, args[1:])

	child := exec.CommandContext(spanCtx, args[0], args[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = tracing.InjectEnv(spanCtx, os.Environ())

	id, err := sess.StartTimer(tags.Of("group", group, "command", name), nil)
	if err != nil {
		return err
	}
	runErr := child.Run()
	sess.StopTimer(id)

	code := 0
	if ps := child.ProcessState; ps != nil {
		code = ps.ExitCode()
		sess.SetRusage(ps.UserTime(), ps.SystemTime())
		if code >= 0 {
			sess.SetStatus(uint32(code))
		}
	}
	tracing.EndSpan(span, runErr, attribute.Int("process.exit.code", code))

	if a.cfg.ScriptName == "" {
		sess.SetScriptName(name)
	}
	if a.cfg.Enabled {
		if err := sess.Flush(context.WithoutCancel(ctx), "", 0); err != nil {
			a.log.Warnf("flush failed: %s", err)
		}
	} else {
		a.log.Debug("pinba is disabled, nothing sent")
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && code > 0 {
		return &exitCodeError{code: code}
	}
	return runErr
}
