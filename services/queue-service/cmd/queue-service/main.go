package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/auth"
	libconfig "github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/config"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/grpcx"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/libs/runtime"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/cleanup"
	"github.com/dhaliwaljashan/pharmacy-queue-management-system/services/queue-service/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "queue-service",
		Short:        "Pharmacy walk-in queue: booking, live status, reminders",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(healthcheckCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health and the background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema or create the Mongo indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)
			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()
			if err := be.migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema applied", "driver", cfg.StoreDriver)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one retention pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)
			be, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer be.close()
			w := cleanup.NewWorker(be.store, logger, cleanup.WorkerConfig{Retention: cfg.Retention})
			_, err = w.Purge(cmd.Context())
			return err
		},
	}
}

// healthcheck only needs the gRPC port, so it skips full config validation
// and works inside a container that has no database credentials.
func healthcheckCmd() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the gRPC health service and exit non-zero unless SERVING",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				v := libconfig.New()
				v.SetDefault("GRPC_PORT", "9090")
				port, err := libconfig.Port(v, "GRPC_PORT")
				if err != nil {
					return err
				}
				addr = "127.0.0.1:" + port
			}
			if err := grpcx.CheckHealth(cmd.Context(), addr, service, 3*time.Second); err != nil {
				return fmt.Errorf("unhealthy: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default 127.0.0.1:$GRPC_PORT)")
	cmd.Flags().StringVar(&service, "service", "", "service name to check; empty checks the whole server")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject, name, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff bearer token signed with ADMIN_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := libconfig.RequiredString(libconfig.New(), "ADMIN_JWT_SECRET")
			if err != nil {
				return err
			}
			if role != auth.RoleStaff && role != auth.RoleSuper {
				return fmt.Errorf("role must be %s or %s", auth.RoleStaff, auth.RoleSuper)
			}
			tok, err := auth.SignHS256(subject, name, role, secret, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "staff id placed in the sub claim")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", auth.RoleStaff, "staff or super")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
