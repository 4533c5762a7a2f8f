package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/money-diary/pkg/interceptors"
)

func parseUser(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, usageError(errors.New("--user is required"))
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, usageError(fmt.Errorf("--user: %w", err))
	}
	return id, nil
}

func newSeedCommand(e *env) *cobra.Command {
	var user string
	var currency string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories and a demo account for a user",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUser(user)
			if err != nil {
				return err
			}
			if len(currency) != 3 {
				return usageError(fmt.Errorf("--currency must be a 3-letter code, got %q", currency))
			}

			c, _, err := e.open()
			if err != nil {
				return err
			}
			defer c.close()

			res, err := c.store.Seed(cmd.Context(), userID, strings.ToUpper(currency))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "categories created: %d\n", res.Categories)
			fmt.Fprintf(out, "subcategories created: %d\n", res.Subcategories)
			if res.AccountCreated {
				fmt.Fprintf(out, "demo account created: %s\n", res.AccountID)
			} else {
				fmt.Fprintf(out, "demo account exists: %s\n", res.AccountID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id to seed (required)")
	cmd.Flags().StringVar(&currency, "currency", "EUR", "currency of the demo account")
	return cmd
}

func newReconcileCommand(e *env) *cobra.Command {
	var user string
	var fix bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored account balances with their transactions",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUser(user)
			if err != nil {
				return err
			}

			c, _, err := e.open()
			if err != nil {
				return err
			}
			defer c.close()

			drifts, err := c.store.Drifts(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				fmt.Fprintln(out, "all balances match")
				return nil
			}
			for _, d := range drifts {
				fmt.Fprintf(out, "%s (%s): stored %s, computed %s\n",
					d.Name, d.AccountID, d.Stored.StringFixed(2), d.Computed.StringFixed(2))
			}
			if !fix {
				return nil
			}
			if err := c.store.Reconcile(cmd.Context(), drifts); err != nil {
				return err
			}
			fmt.Fprintf(out, "reconciled %d account(s)\n", len(drifts))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user whose accounts are checked (required)")
	cmd.Flags().BoolVar(&fix, "fix", false, "overwrite drifted balances")
	return cmd
}

func newTokenCommand(e *env) *cobra.Command {
	var user string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUser(user)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return usageError(errors.New("--ttl must be positive"))
			}

			cfg, err := e.config()
			if err != nil {
				return err
			}

			token, err := interceptors.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "subject of the token (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
