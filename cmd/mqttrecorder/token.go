package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-recorder/internal/auth"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = os.Getenv(configEnv)
			}
			cfg, err := config.LoadOrDefault(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.API.JWT.Secret == "" {
				return fmt.Errorf("api.jwt.secret is not set (or set MQTTREC_JWT_SECRET)")
			}

			if ttl == 0 {
				ttl = time.Duration(cfg.API.JWT.TokenTTL) * time.Minute
			}

			token, err := auth.GenerateToken(subject, cfg.API.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.jwt.token_ttl)")

	return cmd
}
