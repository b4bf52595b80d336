package app

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
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"polosync/internal/httpx"
	syncpkg "polosync/internal/sync"
)

const (
	serverReadTimeout     = 5 * time.Second
	serverWriteTimeout    = 15 * time.Minute // sync passes are slow
	serverIdleTimeout     = 60 * time.Second
	gracefulShutdownLimit = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the on-demand sync trigger over HTTP",
	Long: `Start an HTTP server exposing health probes and an internal endpoint
that triggers a sync pass on demand:

  POST /internal/jobs/sync[?tenant=<subdomain>]

The endpoint requires the X-Internal-Secret header to match the
POLOSYNC_INTERNAL_SECRET environment variable.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	cobra.CheckErr(viper.BindPFlag("address", serveCmd.Flags().Lookup("address")))
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := viper.GetString("internal-secret")
	if secret == "" {
		return errors.New("POLOSYNC_INTERNAL_SECRET must be set")
	}

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	handler := syncpkg.NewHTTPHandler(d.orch, d.tenants, secret)

	router := http.NewServeMux()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := d.pool.Ping(pingCtx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	router.HandleFunc("/internal/jobs/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.JSONError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
			return
		}
		handler.Sync(w, r)
	})

	chain := httpx.RequestIDMiddleware(
		httpx.AccessLogMiddleware(d.logger)(
			httpx.RecoveryMiddleware(d.logger)(router)))

	address := viper.GetString("address")
	server := &http.Server{
		Addr:         address,
		Handler:      chain,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("http server listening", zap.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownLimit)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
