package main

import (
	"github.com/spf13/cobra"

	"github.com/torosent/pinba/internal/output"
)

func dumpSubcommand(a *app) *cobra.Command {
	var (
		flags  requestFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the packet send would deliver, without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			req, err := flags.load()
			if err != nil {
				return err
			}
			c, err := a.newClient()
			if err != nil {
				return err
			}
			if err := req.apply(c); err != nil {
				return err
			}
			return output.WritePacket(cmd.OutOrStdout(), c.Data(0), f)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", string(output.FormatText), "Output format: text, json, yaml or hex")
	return cmd
}
