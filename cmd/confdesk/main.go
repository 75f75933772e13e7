package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/confdesk/backend/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to load .env: " + err.Error() + "\n")
	}

	rootCmd := &cobra.Command{
		Use:   "confdesk",
		Short: "Conference desk backend: HTTP API and Telegram bot",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAPICommand(), newBotCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the conference HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd.Context())
		},
	}
}

func newBotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that browses and announces conferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("telegram-token", "", "Telegram bot token (overrides env)")
	cmd.PersistentFlags().Int("refresh-interval-seconds", defaults.GetInt("updates.interval_seconds"), "Conference refresh interval in seconds")
	cmd.PersistentFlags().String("refresh-cron", defaults.GetString("updates.cron"), "Cron expression replacing the refresh interval")
	cmd.PersistentFlags().String("subscribers-backend", defaults.GetString("subscribers.backend"), "Subscriber storage (database, file)")
	cmd.PersistentFlags().String("subscribers-path", defaults.GetString("subscribers.path"), "Subscriber file for the file backend")
	cmd.PersistentFlags().String("lock-path", defaults.GetString("bot.lock_path"), "Single instance lock file of the bot")
	cmd.PersistentFlags().String("metrics-address", defaults.GetString("bot.metrics_address"), "Bot metrics listen address, empty to disable")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "telegram.token", "telegram-token")
	bindFlag(cmd, "updates.interval_seconds", "refresh-interval-seconds")
	bindFlag(cmd, "updates.cron", "refresh-cron")
	bindFlag(cmd, "subscribers.backend", "subscribers-backend")
	bindFlag(cmd, "subscribers.path", "subscribers-path")
	bindFlag(cmd, "bot.lock_path", "lock-path")
	bindFlag(cmd, "bot.metrics_address", "metrics-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	return readConfig(viper.GetViper(), cfgFile)
}

// readConfig loads path into configViper. An explicit path must exist and
// parse; without one, only a missing config file is tolerated.
func readConfig(configViper *viper.Viper, path string) error {
	if path != "" {
		configViper.SetConfigFile(path)
	}

	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &configNotFound) {
			return nil
		}
		if path != "" {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return fmt.Errorf("read config: %w", err)
	}

	return nil
}
