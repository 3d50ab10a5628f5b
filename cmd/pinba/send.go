package main

import (
	"github.com/spf13/cobra"
)

func sendSubcommand(a *app) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one request built from flags or a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			if !a.cfg.Enabled {
				a.log.Info("pinba is disabled, nothing sent")
				return nil
			}
			if err := c.Send(cmd.Context(), 0); err != nil {
				return err
			}
			for addr, st := range c.Stats() {
				a.log.Debugf("%s: %d packet(s), %d bytes", addr, st.PacketsSent, st.BytesSent)
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
