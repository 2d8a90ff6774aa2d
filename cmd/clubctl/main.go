// Command clubctl runs club maintenance tasks against the configured database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/app"
	"github.com/noah-isme/gliding-club-api/pkg/config"
	"github.com/noah-isme/gliding-club-api/pkg/logger"
)

func main() {
	if err := run(os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		(&commandLine{out: os.Stdout}).printUsage()
		return errHelp
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logr.Named("clubctl"))
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logr.Warn("close resources", zap.Error(err))
		}
	}()

	cli := &commandLine{
		digest:  application.Services.Notifications,
		catalog: application.Services.Catalog,
		admins:  application.Services.Users,
		migrate: application.Migrate,
		out:     os.Stdout,
	}
	return cli.run(ctx, args)
}
