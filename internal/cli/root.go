// Package cli implements the taskctl command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskagent/config"
	"taskagent/pkg/db"
	"taskagent/pkg/logger"
)

var appVersion = "dev"

// SetVersion sets the version injected via ldflags.
func SetVersion(version string) {
	appVersion = version
}

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Operate the task agent from the command line",
	Long: `taskctl classifies chat messages offline, serves the task tools over MCP,
and runs maintenance commands against the task agent database.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskctl %s\n", appVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// backend 需要数据库的命令共用的依赖
type backend struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func openBackend(ctx context.Context) (*backend, error) {
	log := logger.NewLogger("taskctl")
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &backend{cfg: cfg, pool: pool, logger: log}, nil
}

func (b *backend) Close() {
	b.pool.Close()
	_ = b.logger.Sync()
}
