package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/auth"
	"ledger/internal/config"

	"github.com/spf13/cobra"
)

// tokenCmd issues a bearer token for local development and testing.
func tokenCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(owner) == "" {
				return errors.New("--owner is required")
			}
			verifier, err := auth.NewVerifier(config.Load().JWTSecret)
			if err != nil {
				return err
			}
			tok, err := verifier.Issue(owner, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	return cmd
}
