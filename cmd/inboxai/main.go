package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inboxai/internal/browser"
	"inboxai/internal/session"
	"inboxai/internal/tui"
)

const loginTimeout = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "inboxai",
		Short: "Terminal client for the InboxAI mail service",
		Long: `InboxAI brings every connected mailbox into one inbox and lets the
AI agent summarize, classify and filter it.

Without a subcommand the interactive client starts.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := opts
			o.listen = true
			return withApp(cmd.Context(), o, runTUI)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "configuration directory (default ~/.config/inboxai)")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(loginCmd(&opts), logoutCmd(&opts), statusCmd(&opts), syncCmd(&opts))
	return cmd
}

func withApp(ctx context.Context, opts options, run func(context.Context, *app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()
	if err := run(ctx, a); err != nil {
		a.log.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

func runTUI(ctx context.Context, a *app) error {
	appModel := tui.NewAppModel(ctx, a.deps())
	p := tea.NewProgram(&appModel, tea.WithAltScreen(), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

func loginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o := *opts
			o.listen = true
			return withApp(cmd.Context(), o, func(ctx context.Context, a *app) error {
				if a.session.IsAuthenticated() {
					fmt.Fprintf(cmd.OutOrStdout(), "Already signed in as %s\n", a.session.User().OAuthEmail)
					return nil
				}
				if a.listener == nil {
					return fmt.Errorf("cannot listen on %s for the login callback; use the interactive client and paste the redirect URL", a.cfg.CallbackAddr)
				}

				u := a.client.Auth.GoogleLoginURL()
				fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", u)
				if err := (browser.System{}).Open(u); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Open the URL above in your browser to continue.")
				}

				ctx, cancel := context.WithTimeout(ctx, loginTimeout)
				defer cancel()
				select {
				case res := <-a.listener.Results():
					if !res.OK() {
						return errors.New(res.Message)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", a.session.User().OAuthEmail)
					return a.cache.Clear(ctx)
				case <-ctx.Done():
					return fmt.Errorf("waiting for login: %w", ctx.Err())
				}
			})
		},
	}
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *opts, func(ctx context.Context, a *app) error {
				// The cache is scoped to the signed-in user; clear it first.
				if err := a.cache.Clear(ctx); err != nil {
					return err
				}
				if err := a.session.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "API:   %s\n", a.client.BaseURL())
				keys, err := a.db.Keys(ctx)
				if err != nil {
					return fmt.Errorf("read store: %w", err)
				}
				fmt.Fprintf(out, "Store: %s [%s]\n", a.cfg.DBPath(), strings.Join(keys, ", "))
				if !a.session.IsAuthenticated() {
					fmt.Fprintln(out, "State: signed out")
					return nil
				}
				u := a.session.User()
				fmt.Fprintln(out, "State: signed in")
				fmt.Fprintf(out, "User:  %s <%s>\n", u.Name(), u.OAuthEmail)

				claims, err := session.Claims(a.session.Token())
				switch {
				case err != nil:
					fmt.Fprintln(out, "Token: opaque")
				case claims.ExpiresAt.IsZero():
					fmt.Fprintln(out, "Token: no expiry")
				case claims.Expired(time.Now()):
					fmt.Fprintf(out, "Token: expired %s\n", claims.ExpiresAt.Local().Format(time.DateTime))
				default:
					fmt.Fprintf(out, "Token: expires %s\n", claims.ExpiresAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}

func syncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Ask the backend to fetch new mail",
		Long:  "Triggers a fetch for one connected account, or for all accounts when no id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account string
			if len(args) == 1 {
				account = args[0]
			}
			return withApp(cmd.Context(), *opts, func(ctx context.Context, a *app) error {
				if !a.session.IsAuthenticated() {
					return errors.New("not signed in; run inboxai login")
				}
				res, err := a.client.Emails.Ingest(ctx, account)
				if err != nil {
					return err
				}
				if res.Message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				}
				return nil
			})
		},
	}
}
