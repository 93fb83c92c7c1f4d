package main

import (
	"context"
	"fmt"
	"strings"

	pact "github.com/glimte/mmate-pact"
	"github.com/glimte/mmate-pact/internal/config"
	"github.com/glimte/mmate-pact/messaging"
	"github.com/glimte/mmate-pact/verification"
	"github.com/glimte/mmate-pact/verifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		fixtures string
		host     string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded messages through a verification proxy",
		Long: `Serve starts a verification proxy whose producers replay the recorded messages in
a fixture directory. Each *.json file holds {"description", "contents", "metadata"}
or an array of them. The proxy runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fixtures") {
				cfg.Fixtures = fixtures
			}
			if cmd.Flags().Changed("host") {
				cfg.Proxy.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Proxy.Port = port
			}
			if cfg.Fixtures == "" {
				return fmt.Errorf("a fixture directory is required (--fixtures or config fixtures)")
			}

			loaded, err := config.LoadFixtures(cfg.Fixtures)
			if err != nil {
				return err
			}

			handlers := messaging.NewHandlerRegistry(
				messaging.WithRegistryLogger(logger),
				messaging.WithMiddleware(messaging.TimeoutMiddleware(cfg.Proxy.ProducerTimeout), messaging.RecoverMiddleware()),
			)
			for description, producer := range config.Producers(loaded) {
				if err := handlers.RegisterFunc(description, producer); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			reg := prometheus.NewRegistry()
			metrics, err := verification.NewMetrics(reg)
			if err != nil {
				return err
			}
			startMetrics(ctx, cfg.MetricsAddr, reg, logger)

			handler := verification.NewHandler(handlers, nil,
				verification.WithHandlerLogger(logger),
				verification.WithMetrics(metrics),
			)
			server := verification.NewProxyServer(handler,
				verification.WithAddress(cfg.Proxy.Host, cfg.Proxy.Port),
				verification.WithReadyTimeout(cfg.Proxy.ReadyTimeout),
				verification.WithShutdownTimeout(shutdownTimeout),
				verification.WithServerLogger(logger),
			)
			if err := server.Start(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %d messages at %s\n", handlers.Len(), server.URL())
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", strings.Join(handlers.Descriptions(), "\n  "))
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

			<-ctx.Done()
			// restore default signal handling so a second interrupt kills the process
			cancel()

			logger.Info("stopping verification proxy")
			closeCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			return server.Close(closeCtx)
		},
	}

	cmd.Flags().StringVarP(&fixtures, "fixtures", "f", "", "Directory of recorded messages")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Proxy interface")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Proxy port, 0 picks a free port")
	return cmd
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	var (
		fixtures string
		pactURLs []string
		provider string
		binary   string
		publish  bool
	)

	cmd := &cobra.Command{
		Use:   "verify [pact-urls...]",
		Short: "Verify recorded messages against consumer contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fixtures") {
				cfg.Fixtures = fixtures
			}
			if cmd.Flags().Changed("provider") {
				cfg.Provider = provider
			}
			if cmd.Flags().Changed("verifier") {
				cfg.Verifier.Binary = binary
			}
			if cmd.Flags().Changed("publish") {
				cfg.Broker.PublishResults = publish
			}
			cfg.PactURLs = append(cfg.PactURLs, pactURLs...)
			cfg.PactURLs = append(cfg.PactURLs, args...)
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if len(cfg.PactURLs) == 0 && cfg.Broker.URL == "" {
				return fmt.Errorf("no pact source: pass pact URLs or configure a broker")
			}

			producers := map[string]messaging.ProducerFunc{}
			if cfg.Fixtures != "" {
				loaded, err := config.LoadFixtures(cfg.Fixtures)
				if err != nil {
					return err
				}
				producers = config.Producers(loaded)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			reg := prometheus.NewRegistry()
			metrics, err := verification.NewMetrics(reg)
			if err != nil {
				return err
			}
			startMetrics(ctx, cfg.MetricsAddr, reg, logger)

			process, err := verifier.NewProcessVerifier(
				verifier.WithBinary(cfg.Verifier.Binary),
				verifier.WithMinVersion(cfg.Verifier.MinVersion),
				verifier.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			messageProvider, err := pact.NewMessageProviderPact(pact.Options{
				Provider:                  cfg.Provider,
				Consumer:                  cfg.Consumer,
				ProviderVersion:           cfg.ProviderVersion,
				MessageProviders:          producers,
				PactURLs:                  cfg.PactURLs,
				PactBrokerURL:             cfg.Broker.URL,
				PactBrokerUsername:        cfg.Broker.Username,
				PactBrokerPassword:        cfg.Broker.Password,
				PactBrokerToken:           cfg.Broker.Token,
				PublishVerificationResult: cfg.Broker.PublishResults,
				Tags:                      cfg.Broker.Tags,
				ConsumerVersionTags:       cfg.Broker.ConsumerVersionTags,
				Host:                      cfg.Proxy.Host,
				Port:                      cfg.Proxy.Port,
				ReadyTimeout:              cfg.Proxy.ReadyTimeout,
				ProducerTimeout:           cfg.Proxy.ProducerTimeout,
				VerifierTimeout:           cfg.Verifier.Timeout,
			},
				pact.WithLogger(logger),
				pact.WithVerifier(process),
				pact.WithMetrics(metrics),
			)
			if err != nil {
				return err
			}

			outcome, err := messageProvider.Verify(ctx)
			if outcome != nil && outcome.Output != "" {
				fmt.Fprint(cmd.OutOrStdout(), outcome.Output)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Verification passed in %s\n", outcome.Duration)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fixtures, "fixtures", "f", "", "Directory of recorded messages")
	cmd.Flags().StringSliceVar(&pactURLs, "pact-url", nil, "Pact file or URL (repeatable)")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name")
	cmd.Flags().StringVar(&binary, "verifier", verifier.DefaultBinary, "Verifier executable")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish verification results to the broker")
	return cmd
}
