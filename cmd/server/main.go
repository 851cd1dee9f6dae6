package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quiz-agent/internal/di"
	"quiz-agent/internal/domain/entity"
	"quiz-agent/internal/infrastructure/env"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quiz-agent",
		Short:         "Automated solver for chained quiz pages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newSolveCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API that accepts quiz chain requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := di.ConfigFromEnv(env.NewEnvService())
			if addr != "" {
				cfg.Addr = addr
			}

			container, err := di.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := container.Server.Start(ctx); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			container.Logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	return cmd
}

func newSolveCmd() *cobra.Command {
	var (
		email  string
		secret string
		budget time.Duration
	)

	cmd := &cobra.Command{
		Use:   "solve <url>",
		Short: "Solve one quiz chain from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := di.ConfigFromEnv(env.NewEnvService())
			if email != "" {
				cfg.Email = email
			}
			if secret != "" {
				cfg.Secret = secret
			}

			container, err := di.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			task := entity.ChainTask{
				ID:       uuid.New().String(),
				StartURL: args[0],
				Credential: entity.Credential{
					Email:  cfg.Email,
					Secret: cfg.Secret,
				},
				Deadline: time.Now().Add(budget),
			}

			result := container.Runner.Run(context.Background(), task)

			fmt.Printf("outcome: %s\nlinks completed: %d\n", result.Outcome, result.LinksCompleted)
			if result.LastError != nil {
				fmt.Printf("last error: %v\n", result.LastError)
			}
			if result.Outcome != entity.OutcomeSolved {
				return fmt.Errorf("chain did not finish: %s", result.Outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "credential email submitted with each answer")
	cmd.Flags().StringVar(&secret, "secret", "", "credential secret submitted with each answer")
	cmd.Flags().DurationVar(&budget, "budget", 3*time.Minute, "wall-clock budget for the whole chain")
	return cmd
}
