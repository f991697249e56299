package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spiffcs/repopulse/config"
)

// NewCmdConfig creates the config command with subcommands.
func NewCmdConfig() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		Long: `Show or manage configuration.

When run without arguments, shows the resolved configuration: defaults,
then the global file, then ./.repopulse.yaml.

Secrets such as GITHUB_TOKEN or DATABASE_URL are read from the environment
or a .env file and never from config files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml, json)")

	cmd.AddCommand(
		NewCmdConfigInit(),
		NewCmdConfigPath(),
		NewCmdConfigDefaults(),
		NewCmdConfigShow(),
		NewCmdConfigCheck(),
	)
	return cmd
}

// NewCmdConfigInit creates the config init subcommand.
func NewCmdConfigInit() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter config file",
		Long: `Create a starter config file.

The file is written to the global config directory unless --local is given,
in which case ./.repopulse.yaml is created.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.ConfigPath()
			if local {
				path = config.LocalConfigPath()
			}
			return runConfigInit(cmd.OutOrStdout(), path)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Create ./.repopulse.yaml instead of the global file")
	return cmd
}

// NewCmdConfigPath creates the config path subcommand.
func NewCmdConfigPath() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file locations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			printConfigPaths(cmd.OutOrStdout(), config.GetConfigPaths())
			return nil
		},
	}
}

// NewCmdConfigDefaults creates the config defaults subcommand.
func NewCmdConfigDefaults() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show all default configuration values",
		Example: `  repopulse config defaults > ~/.config/repopulse/config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeConfig(cmd.OutOrStdout(), config.DefaultConfig(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

// NewCmdConfigShow creates the config show subcommand.
func NewCmdConfigShow() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

// NewCmdConfigCheck creates the config check subcommand.
func NewCmdConfigCheck() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the environment for serve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigCheck(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(w io.Writer, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := config.SaveTo(path, config.MinimalConfig()); err != nil {
		return err
	}
	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w, "Run 'repopulse config defaults' to see every option.")
	return nil
}

func printConfigPaths(w io.Writer, paths config.ConfigPathInfo) {
	status := func(exists bool) string {
		if exists {
			return color.GreenString("exists")
		}
		return color.HiBlackString("not found")
	}
	fmt.Fprintf(w, "Global: %s (%s)\n", paths.GlobalPath, status(paths.GlobalExists))
	fmt.Fprintf(w, "Local:  %s (%s)\n", paths.LocalPath, status(paths.LocalExists))
}

func runConfigShow(w io.Writer, format string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Settings().Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return writeConfig(w, cfg.Resolved(), format)
}

// runConfigCheck reports every problem serve would fail on at startup.
func runConfigCheck(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	settings := cfg.Settings()

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	needs := config.Needs{FallbackToken: true, Store: true, Sink: true}
	if env.OAuthEnabled() {
		needs.OAuth = true
	}
	if err := errors.Join(settings.Validate(), env.Validate(settings, needs)); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s configuration is valid\n", color.GreenString("ok"))
	fmt.Fprintf(w, "  store:   %s\n", settings.StoreDriver)
	fmt.Fprintf(w, "  sink:    %s\n", settings.Sink)
	fmt.Fprintf(w, "  oauth:   %t\n", needs.OAuth)
	fmt.Fprintf(w, "  webhook: %t\n", env.WebhookEnabled())
	fmt.Fprintf(w, "  redis:   %t\n", env.RedisURL != "")
	return nil
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "yaml":
		out, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be yaml or json)", format)
	}
}
