// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"go.uber.org/zap"
)

// newLogger builds a console logger for debug runs and a JSON production
// logger otherwise. Both write to stderr so stdout stays free for results
// and the MCP stdio transport.
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
