package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/redlogic/internal/controller"
	"github.com/coffersTech/redlogic/internal/server"
)

var noAuth bool

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Loads the configured dictionary snapshot and rule files, then serves
the parsing and rule set API until interrupted. Rule files are watched and
reloaded when rules.watch is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noAuth, "no-auth", false, "Serve without API key authentication")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	if cfg.Dictionary.Snapshot != "" {
		if err := eng.LoadDictionary(cfg.Dictionary.Snapshot); err != nil {
			return err
		}
	}
	for _, file := range cfg.Rules.Files {
		if _, err := eng.LoadRules(file); err != nil {
			return err
		}
	}

	var keys *controller.Store
	if !noAuth {
		if keys, err = openKeyStore(); err != nil {
			return err
		}
		if keys.Len() == 0 {
			logger.Warn("No API keys configured; every request will be rejected. Run 'redlogic keys add NAME'.")
		}
	} else {
		logger.Warn("Authentication disabled")
	}

	srv := server.NewAPIServer(eng, keys, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Rules.Watch {
		g.Go(func() error {
			return eng.WatchRules(ctx)
		})
	}
	g.Go(func() error {
		eng.RunCleaner(ctx, time.Minute)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		return err
	}
	logger.Info("redlogic exited gracefully")
	return nil
}
