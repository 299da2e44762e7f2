package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aicmo/benchcheck/internal/mcpserver"
)

func newServeMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve benchmark validation tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []mcpserver.Option{mcpserver.WithLogger(a.logger.Named("mcp"))}
			if a.cfg.History.Enabled {
				runs, err := a.openHistory()
				if err != nil {
					return err
				}
				defer runs.Close()
				opts = append(opts, mcpserver.WithRunLister(runs))
			}

			svc := mcpserver.NewService(a.store, a.validator(), opts...)
			a.logger.Info("serving MCP on stdio", zap.String("benchmarks", a.cfg.Benchmarks.Dir))
			return mcpserver.Run(cmd.Context(), svc)
		},
	}
}
