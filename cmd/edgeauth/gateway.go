package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackwise/edgeauth/bearer"
	"github.com/trackwise/edgeauth/gateway"
	"github.com/trackwise/edgeauth/internal/config"
	"github.com/trackwise/edgeauth/jwt"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the edge gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if s.Secret == "" {
			return config.ErrSecretMissing
		}

		method, err := jwt.ParseSigningMethod(s.JWTAlg)
		if err != nil {
			return err
		}
		tokens, err := jwt.NewManager(jwt.Config{
			AccessTTL:     s.AccessTTL,
			SigningMethod: method,
			Secret:        []byte(s.Secret),
		})
		if err != nil {
			return fmt.Errorf("token codec: %w", err)
		}

		gw, err := gateway.New(s.Gateway(), bearer.NewVerifier(tokens))
		if err != nil {
			return err
		}
		log.Info().
			Str("auth", s.Upstreams.Auth).
			Str("projects", s.Upstreams.Projects).
			Str("defects", s.Upstreams.Defects).
			Str("reports", s.Upstreams.Reports).
			Dur("timeout", s.UpstreamTimeout).
			Strs("origins", s.AllowedOrigins).
			Msg("gateway configured")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, "gateway", s.GatewayAddr, gw)
	},
}

func init() {
	gatewayCmd.Flags().String("addr", ":8000", "Listen address")
	bindFlag(gatewayCmd.Flags(), config.GatewayAddrKey, "addr")
	rootCmd.AddCommand(gatewayCmd)
}
