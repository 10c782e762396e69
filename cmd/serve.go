// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/internal/observability"
	"github.com/droidpilot/droidpilot-cli/internal/service"
)

// newServeCmd creates the `serve` command: the long-running HTTP/websocket
// service over the task manager.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP service for task control and event streaming",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg.Server.Addr = viper.GetString("server.addr")

			components, err := service.NewComponents(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			server := service.NewServer(cfg, components)

			logger.Info("Service starting", zap.String("addr", cfg.Server.Addr))
			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("service terminated: %w", err)
			}
			logger.Info("Service stopped")
			return nil
		},
	}

	serveCmd.Flags().StringP("addr", "a", "", "Listen address. (Overrides config/env)")
	return serveCmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
