package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"api_market/api"
	"api_market/internal/config"
	"api_market/internal/payments"
	"api_market/internal/uploads"
)

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace HTTP server",
		Long: `Start the marketplace HTTP server.

The store driver, payment provider and upload bucket come from the config
file and environment. Without Stripe credentials the intent endpoint answers
502; without an S3 bucket the upload endpoint answers 503. Finalization and
the catalog work regardless.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger, err := opts.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var intents payments.IntentCreator = payments.Disabled{}
	if cfg.Stripe.APIKey != "" {
		intents = payments.NewStripe(cfg.Stripe.APIKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	} else {
		logger.Warn("stripe is not configured; checkout intents are disabled")
	}

	var signer uploads.Signer
	if cfg.S3.Bucket != "" {
		signer, err = uploads.NewS3(ctx, cfg.S3.Bucket, cfg.S3.Region)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no S3 bucket configured; image uploads are disabled")
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.InitRoutes(r, api.Deps{
		Store:   st,
		Intents: intents,
		Signer:  signer,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
