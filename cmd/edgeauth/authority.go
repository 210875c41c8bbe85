package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/trackwise/edgeauth/internal/api/authority"
	"github.com/trackwise/edgeauth/internal/config"
	"github.com/trackwise/edgeauth/internal/janitor"
	otelexport "github.com/trackwise/edgeauth/metrics/export/otel"
	"github.com/trackwise/edgeauth/metrics/export/prometheus"
)

var authorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Migrate the principal store, then run the session authority",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newAuthorityApp(ctx, s, true)
		if err != nil {
			return err
		}
		defer app.Close()

		if withOTel, _ := cmd.Flags().GetBool("otel"); withOTel {
			exp, err := otelexport.New(otel.GetMeterProvider().Meter("github.com/trackwise/edgeauth"), app.engine)
			if err != nil {
				return fmt.Errorf("otel exporter: %w", err)
			}
			defer exp.Close()
		}

		var wg sync.WaitGroup
		wg.Go(func() {
			_ = janitor.New(app.engine, app.engine.PurgeInterval()).Run(ctx)
		})
		defer wg.Wait()

		h := authority.New(app.engine, prometheus.New(app.engine).Handler())
		report := app.engine.SecurityReport()
		log.Info().
			Str("database", s.DatabaseURL).
			Str("alg", report.SigningAlgorithm).
			Dur("access_ttl", report.AccessTTL).
			Bool("login_throttle", report.LoginThrottleActive).
			Bool("audit", report.AuditEnabled).
			Dur("purge_interval", report.PurgeInterval).
			Msg("authority configured")
		err = serve(ctx, "authority", s.AuthorityAddr, h.Routes())
		stop()
		return err
	},
}

func init() {
	authorityCmd.Flags().String("addr", ":8001", "Listen address")
	authorityCmd.Flags().Bool("otel", false, "Publish engine counters on the global OpenTelemetry meter provider")
	bindFlag(authorityCmd.Flags(), config.AuthorityAddrKey, "addr")
	rootCmd.AddCommand(authorityCmd)
}
