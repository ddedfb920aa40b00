package main

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/beamo-co/breeze-go/mcp"
)

func newMCPCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve purchase tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewServer(a.engine, mcp.WithLogger(a.logger), mcp.WithImplementation("breeze-demo", "1.0.0"))
			return server.Run(ctx, &mcpsdk.StdioTransport{})
		},
	}
}
