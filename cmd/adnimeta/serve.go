// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/tool"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the extract_scan_metadata tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			p, _, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			server := mcp.NewServer(&mcp.Implementation{Name: "adnimeta", Version: version}, nil)
			tool.Register(server, p)

			logger.Info("serving MCP on stdio", zap.String("version", version))
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
