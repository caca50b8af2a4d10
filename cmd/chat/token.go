package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/gadgetchat/internal/auth"
	"github.com/suPer8Hu/gadgetchat/internal/config"
)

func newTokenCmd(cfg config.Config) *cobra.Command {
	var (
		role   string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a development token",
		Long:  "Signs an HS256 token with JWT_SECRET for local testing. Roles: user, admin, super_admin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case "user", "admin", "super_admin":
			default:
				return errors.Errorf("unknown role %q", role)
			}
			tok, err := auth.SignJWT(args[0], role, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "role claim")
	cmd.Flags().StringVar(&secret, "secret", cfg.JWTSecret, "signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
