package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/servetable/servetable/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "servetable.toml"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved servetable configuration as TOML.
Shows the result of merging defaults, servetable.toml, environment variables, and flags.`,
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default servetable.toml",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	configCmd.Flags().String("config", "", "Path to servetable.toml config file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Secrets stay out of terminal scrollback.
	redactSecrets(cfg)

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	}

	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := defaultConfigFile
	if len(args) == 1 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := config.GenerateDefault(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func redactSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.Guest.JWTSecret,
		&cfg.SMS.TwilioToken,
		&cfg.SMS.WebhookSecret,
		&cfg.Payments.DummyWebhookSecret,
		&cfg.Payments.MaibWebhookSecret,
	} {
		if *s != "" {
			*s = "***"
		}
	}
	if cfg.Database.URL != "" {
		cfg.Database.URL = redactURL(cfg.Database.URL)
	}
}
