package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	transport "omrzen/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the websocket test server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), cmd, *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, cmd *cobra.Command, configPath, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = rt.cfg.Server.Port
	}

	wsHandler := transport.NewWSHandler(rt.service, rt.cfg.DefaultTest(), rt.log)
	reportHandler := transport.NewReportHandler(rt.service, rt.log)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.Routes(wsHandler, reportHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.log.Info().
			Str("port", finalPort).
			Str("backend", rt.cfg.Storage.Backend).
			Str("phase", string(rt.service.Phase())).
			Msg("starting omrzen server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
