package main

import (
	"github.com/spf13/cobra"

	"github.com/torosent/pinba/internal/wire"
)

func schemaSubcommand(*app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the Pinba request message as a .proto file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return wire.WriteProto(cmd.OutOrStdout(), wire.PinbaSchema, "Pinba", "Request")
		},
	}
}
