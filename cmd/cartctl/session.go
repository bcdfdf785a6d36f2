package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-proxy/internal/graphql"
	"storefront-proxy/internal/session"
)

func newSessionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the stored shopper session",
	}
	cmd.AddCommand(
		newSessionShowCmd(opts),
		newSessionResetCmd(opts),
		newSessionLogoutCmd(opts),
		newSessionLoginCmd(opts),
		newSessionRegisterCmd(opts),
	)
	return cmd
}

// sessionView is what "session show" prints.
type sessionView struct {
	Token          string          `json:"token,omitempty"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"`
	Nonce          string          `json:"nonce,omitempty"`
	NonceExpiresAt *time.Time      `json:"nonceExpiresAt,omitempty"`
	LoggedIn       bool            `json:"loggedIn"`
	User           json.RawMessage `json:"user,omitempty"`
}

func newSessionShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session token, nonce and login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}

			var v sessionView
			if tok, ok := a.sessions.SessionToken(); ok {
				expires := tok.CreatedAt.Add(session.SessionTTL)
				v.Token, v.CreatedAt, v.ExpiresAt = tok.Value, &tok.CreatedAt, &expires
			}
			if n, ok := a.sessions.Nonce(); ok {
				v.Nonce, v.NonceExpiresAt = n.Value, &n.ExpiresAt
			}
			if auth, ok := a.sessions.Auth(); ok {
				v.LoggedIn, v.User = true, auth.User
			}
			return a.printJSON(v)
		},
	}
}

func newSessionResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the guest session and nonce; the next request starts a new cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			a.cart.ClearSession()
			a.sessions.ClearNonce()
			fmt.Fprintln(a.out, "session reset")
			return nil
		},
	}
}

func newSessionLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the customer login and every session artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			a.sessions.Logout()
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}

func newSessionLoginCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in as a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			auth, err := graphql.NewAccounts(a.graphql, a.sessions).Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{"loggedIn": true, "user": auth.User})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func newSessionRegisterCmd(opts *rootOptions) *cobra.Command {
	var in graphql.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			auth, err := graphql.NewAccounts(a.graphql, a.sessions).Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{"loggedIn": true, "user": auth.User})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&in.Username, "username", "", "username (defaults to the email)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	return cmd
}
