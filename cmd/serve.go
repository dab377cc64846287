// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tokensmith/internal/observability"
	"github.com/xkilldash9x/tokensmith/internal/server"
)

func newServeCommand(holder *configHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the login automation HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := holder.cfg
			logger := observability.GetLogger()

			if cfg.OAuth.ClientID == "" {
				return fmt.Errorf("oauth.client_id is not set; export TOKENSMITH_CLIENT_ID or set it in the config file")
			}

			logger.Info("Starting tokensmith.",
				zap.String("authority", cfg.OAuth.Authority),
				zap.Int("port", cfg.Server.Port),
				zap.Int64("max_sessions", cfg.Server.MaxSessions))

			srv := server.New(cfg, logger)
			return srv.Run(cmd.Context())
		},
	}
}
