package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// NewCmdConnect creates the connect command.
func NewCmdConnect(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Create a GitHub authorization link for a chat",
		Long: `Create a one-time GitHub authorization link for a chat. Opening it and
approving the app stores the chat's own token, removes the repository
limit and sends a confirmation message.

The link is valid for 10 minutes. The server handling the callback must
share the session store, so REDIS_URL is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, opts)
		},
	}
	addChatFlag(cmd, opts)
	return cmd
}

func runConnect(cmd *cobra.Command, opts *Options) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true, OAuth: true}})
	if err != nil {
		return err
	}
	defer a.close()

	if a.env.RedisURL == "" {
		return errors.New("REDIS_URL is required so the server can validate the link")
	}

	link, err := a.subs.BeginConnect(cmd.Context(), opts.ChatID)
	if errors.Is(err, subscription.ErrAlreadyConnected) {
		return fmt.Errorf("chat %d is already connected; run 'repopulse disconnect' first", opts.ChatID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Open this link to connect GitHub (valid for 10 minutes):")
	fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(link))
	return nil
}

// NewCmdDisconnect creates the disconnect command.
func NewCmdDisconnect(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Remove a chat's GitHub credential",
		Long: `Remove a chat's stored GitHub credential. The chat falls back to the
shared token and the default repository limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisconnect(cmd, opts)
		},
	}
	addChatFlag(cmd, opts)
	return cmd
}

func runDisconnect(cmd *cobra.Command, opts *Options) error {
	a, err := newApp(cmd.Context(), appNeeds{env: config.Needs{Store: true}})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.subs.Disconnect(cmd.Context(), opts.ChatID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Disconnected chat %d from GitHub\n", color.GreenString("✓"), opts.ChatID)
	return nil
}
