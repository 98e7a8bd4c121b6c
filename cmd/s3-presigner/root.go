package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/s3-presigner/pkg/presigner/api"
	"github.com/tendant/s3-presigner/pkg/presigner/config"
	"github.com/tendant/s3-presigner/pkg/presigner/signer"
)

const credentialsHelp = `AWS credentials not found or rejected.
Please configure your AWS credentials using one of these methods:
  1. AWS CLI: aws configure
  2. Environment variables: AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN
  3. AWS credentials file: ~/.aws/credentials
`

// ServeOptions defines the options for the s3-presigner command
type ServeOptions struct {
	ConfigPath          string
	Host                string
	Port                int
	Quiet               bool
	LegacyStatus        bool
	SkipCredentialCheck bool

	config *config.ServerConfig
	errOut io.Writer
}

// NewServeOptions provides an initialised ServeOptions instance
func NewServeOptions() *ServeOptions {
	return &ServeOptions{errOut: os.Stderr}
}

// NewRootCommand creates the s3-presigner command
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(NewServeOptions())
}

// NewRootCommandWithOptions creates the s3-presigner command bound to o
func NewRootCommandWithOptions(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s3-presigner",
		Short: "Local server that turns S3 object URLs into presigned URLs",
		Long: `Start a local HTTP server that turns plain S3 object URLs into
time-limited presigned URLs a browser script can fetch directly.

  GET  http://localhost:8080/?url=https://bucket.s3.amazonaws.com/path/file.txt
  POST http://localhost:8080/ with JSON body {"url": "https://...", "expires_in": 3600}`,
		Example: `  # Start on the default address
  s3-presigner

  # Listen on all interfaces, port 9090
  s3-presigner --host 0.0.0.0 --port 9090`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				fmt.Fprintln(o.errOut, err)
				return err
			}
			if err := o.Validate(); err != nil {
				fmt.Fprintln(o.errOut, err)
				return err
			}
			if err := o.Run(cmd.Context()); err != nil {
				fmt.Fprintln(o.errOut, err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&o.Host, "host", "localhost", "Host to bind to")
	cmd.Flags().IntVarP(&o.Port, "port", "p", 8080, "Port to run the server on")
	cmd.Flags().BoolVarP(&o.Quiet, "quiet", "q", false, "Leave raw request bodies out of the logs")
	cmd.Flags().BoolVar(&o.LegacyStatus, "legacy-status", false, "Answer client errors with 200 instead of 400")
	cmd.Flags().BoolVar(&o.SkipCredentialCheck, "skip-credential-check", false, "Start without verifying AWS credentials")

	return cmd
}

// Complete loads the configuration and applies the flags given on the command line
func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.Host
	}
	if flags.Changed("port") {
		cfg.Port = o.Port
	}
	if flags.Changed("quiet") {
		cfg.Quiet = o.Quiet
	}
	if flags.Changed("legacy-status") {
		cfg.LegacyStatus = o.LegacyStatus
	}
	if flags.Changed("skip-credential-check") {
		cfg.SkipCredentialCheck = o.SkipCredentialCheck
	}

	o.config = cfg
	return nil
}

// Validate checks the completed configuration
func (o *ServeOptions) Validate() error {
	if o.config == nil {
		return errors.New("configuration not loaded")
	}
	return o.config.Validate()
}

// Run verifies credentials and serves until interrupted
func (o *ServeOptions) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(o.config, o.errOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	s, err := signer.New(ctx, o.config.SignerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialise signer: %w", err)
	}

	if o.config.SkipCredentialCheck {
		logger.Warn("Skipping AWS credential check")
	} else if err := s.Verify(ctx); err != nil {
		if signer.IsCredentialsError(err) {
			fmt.Fprint(o.errOut, credentialsHelp)
		}
		return fmt.Errorf("AWS credentials test failed: %w", err)
	} else {
		logger.Info("AWS credentials verified")
	}

	handler := api.NewHandler(s, api.Options{
		DefaultExpiresIn: o.config.DefaultExpiresIn,
		MaxBodyBytes:     o.config.MaxBodyBytes,
		LegacyStatus:     o.config.LegacyStatus,
		Quiet:            o.config.Quiet,
		Logger:           logger,
	})

	httpServer := &http.Server{
		Addr:              o.config.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		base := "http://" + o.config.Addr()
		logger.Info("S3 presigner starting",
			"addr", base,
			"get_usage", base+"/?url=https://bucket.s3.amazonaws.com/path/file.txt",
			"post_usage", base+`/ with JSON body {"url": "https://..."}`)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// newLogger builds the process logger from the configured format and level
func newLogger(cfg *config.ServerConfig, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}
