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

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/carbon-advisor/internal/adapters/http"
	"github.com/PabloGalante/carbon-advisor/internal/adapters/llm"
	memstore "github.com/PabloGalante/carbon-advisor/internal/adapters/storage/memory"
	"github.com/PabloGalante/carbon-advisor/internal/app/advisor"
	"github.com/PabloGalante/carbon-advisor/internal/config"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

type options struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "advisor-api",
		Short: "Carbon-Ed Bond advisor HTTP API",
		Long: `Serve advisor sessions over HTTP and WebSocket.

Configuration is read from advisor.yaml (see --config) and overridden by
ADVISOR_* environment variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", os.Getenv("ADVISOR_CONFIG"), "path to advisor.yaml")
	return cmd
}

func serve(ctx context.Context, opts *options) error {
	path, err := config.FindConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level, _ := observability.ParseLogLevel(cfg.LogLevel) // validated by Load
	observability.SetLogger(observability.New(os.Stdout, level, cfg.LogFormat))
	logger := observability.Logger()

	if path != "" {
		logger.Info("config loaded", "path", path)
	}

	if cfg.LLM.Backend == config.BackendMock {
		logger.Warn("using mock generator; answers are offline placeholders")
	}
	gen, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing generator: %w", err)
	}

	router := advisor.NewRouter(gen, advisor.WithCallTimeout(cfg.LLM.CallTimeout))
	svc := advisor.NewService(router, memstore.NewSessionStore(cfg.Sessions.MaxLive))

	srv := &http.Server{
		Addr:              cfg.Listen.Addr(),
		Handler:           httpadapter.NewServer(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		svc.Shutdown(shutdownCtx)
	}()

	logger.Info("advisor API listening", "addr", srv.Addr, "backend", cfg.LLM.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-drained
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "advisor-api:", err)
		stop()
		os.Exit(1)
	}
}
