package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskagent/internal/mcp"
	"taskagent/internal/repository"
	"taskagent/internal/taskops"
	"taskagent/pkg/outbox"
)

var mcpUserID int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task tools over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout that exposes
list_tasks, add_task, complete_task, update_task and delete_task for one user.

Configure it in an assistant's MCP settings, for example:

  {"mcpServers": {"tasks": {"command": "taskctl", "args": ["mcp", "--user", "1"]}}}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mcpUserID <= 0 {
			return fmt.Errorf("--user must be a positive user id")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		loc, err := time.LoadLocation(b.cfg.Agent.DisplayTimezone)
		if err != nil {
			return fmt.Errorf("invalid display timezone: %w", err)
		}

		taskRepo := repository.NewTaskRepository(b.pool, outbox.NewRepository(b.pool), b.logger)
		ops := taskops.NewService(taskRepo, b.logger, taskops.WithLocation(loc))

		// stdout 属于协议，日志只能走 stderr
		b.logger.Info("Starting MCP server", zap.Int("user_id", mcpUserID), zap.String("version", appVersion))
		return mcp.NewServer(ops, mcpUserID, appVersion, b.logger).Run(ctx)
	},
}

func init() {
	mcpCmd.Flags().IntVar(&mcpUserID, "user", 0, "id of the user whose tasks are served")
	_ = mcpCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(mcpCmd)
}
