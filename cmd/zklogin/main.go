package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dtroode/zklogin-recovery/internal/config"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zklogin",
		Short: "Recover a smart wallet by signing in with an OpenID provider",
		Long: `zklogin signs in with an OpenID Connect provider, derives the zk address
of the identity and uses a zero-knowledge proof of the id token to add an
ephemeral owner to the smart wallet linked to that address.`,
		Version:       fmt.Sprintf("%s (date %s, commit %s)", buildVersion, buildDate, buildCommit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		loginCmd(),
		callbackCmd(),
		statusCmd(),
		deployCmd(),
		linkCmd(),
		recoverCmd(),
		removeOwnerCmd(),
		logoutCmd(),
	)
	return rootCmd
}

// run loads configuration, wires the app and calls fn with it.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.NewClientConfig()
	if err != nil {
		return err
	}
	logger := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close local store", "error", err)
		}
	}()

	return fn(ctx, a)
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start a sign-in and print the provider URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if err := a.recovery.Resume(ctx); err != nil {
					return err
				}
				if st := a.recovery.Snapshot().State; st.AtLeast(model.StateAuthenticated) {
					return fmt.Errorf("already signed in (%s), run logout first", st)
				}
				req, err := a.recovery.StartLogin(ctx)
				if err != nil {
					return err
				}
				printLogin(cmd.OutOrStdout(), req)
				return nil
			})
		},
	}
}

func callbackCmd() *cobra.Command {
	var code, token string

	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Complete the sign-in with an authorization code or an id token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (code == "") == (token == "") {
				return errors.New("exactly one of --code and --token is required")
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				if err := a.recovery.Resume(ctx); err != nil {
					return err
				}
				var err error
				if code != "" {
					err = a.recovery.HandleCode(ctx, code)
				} else {
					err = a.recovery.HandleCallback(ctx, token)
				}
				if err != nil {
					return err
				}
				if _, err := a.recovery.DeriveIdentity(ctx); err != nil {
					return err
				}
				if _, err := a.recovery.ResolveWallet(ctx); err != nil {
					return err
				}
				printSnapshot(cmd.OutOrStdout(), a.network, a.recovery.Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code returned to the redirect URI")
	cmd.Flags().StringVar(&token, "token", "", "raw id token")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the on-chain wallet state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if err := a.recovery.Resume(ctx); err != nil {
					return err
				}
				if a.recovery.Snapshot().State.AtLeast(model.StateAuthenticated) {
					if _, err := a.recovery.DeriveIdentity(ctx); err != nil {
						return err
					}
					if _, err := a.recovery.ResolveWallet(ctx); err != nil {
						return err
					}
				}
				printSnapshot(cmd.OutOrStdout(), a.network, a.recovery.Snapshot())
				return nil
			})
		},
	}
}

// walletCmd builds a command that resolves the wallet and runs op.
func walletCmd(use, short string, op func(ctx context.Context, a *app) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.wallet(ctx); err != nil {
					return err
				}
				if err := op(ctx, a); err != nil {
					return err
				}
				printSnapshot(cmd.OutOrStdout(), a.network, a.recovery.Snapshot())
				return nil
			})
		},
	}
}

func deployCmd() *cobra.Command {
	return walletCmd("deploy", "Deploy the smart wallet", func(ctx context.Context, a *app) error {
		return a.recovery.DeployWallet(ctx)
	})
}

func linkCmd() *cobra.Command {
	return walletCmd("link", "Register the zk address and the verifier as wallet owner", func(ctx context.Context, a *app) error {
		return a.recovery.LinkRecovery(ctx)
	})
}

func recoverCmd() *cobra.Command {
	return walletCmd("recover", "Prove the id token and add the ephemeral key as owner", func(ctx context.Context, a *app) error {
		return a.recovery.AddEphemeralOwner(ctx)
	})
}

func removeOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-owner <index>",
		Short: "Remove the wallet owner at index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid owner index %q: %w", args[0], err)
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.wallet(ctx); err != nil {
					return err
				}
				if err := a.recovery.RemoveOwner(ctx, index); err != nil {
					return err
				}
				printSnapshot(cmd.OutOrStdout(), a.network, a.recovery.Snapshot())
				return nil
			})
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the id token and all ephemeral keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if err := a.recovery.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}
