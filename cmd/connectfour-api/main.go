package main

import (
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/connectfour/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(configViper *viper.Viper) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "connectfour-api",
		Short:        "Connect-four saved game service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(configViper, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configViper)
		},
	}

	config.ApplyDefaults(configViper)
	defaults := config.NewViper()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session token signing secret (overrides env)")
	flags.String("issuer", defaults.GetString("auth.issuer"), "Session token issuer")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	flags.String("redis-address", defaults.GetString("redis.address"), "Redis address for the latest-game cache (empty disables)")
	flags.Int("cache-ttl-seconds", defaults.GetInt("redis.cache_ttl_seconds"), "Latest-game cache TTL in seconds")

	bindFlag(configViper, rootCmd, "http.address", "http-address")
	bindFlag(configViper, rootCmd, "database.path", "database-path")
	bindFlag(configViper, rootCmd, "log.level", "log-level")
	bindFlag(configViper, rootCmd, "auth.signing_secret", "signing-secret")
	bindFlag(configViper, rootCmd, "auth.issuer", "issuer")
	bindFlag(configViper, rootCmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(configViper, rootCmd, "redis.address", "redis-address")
	bindFlag(configViper, rootCmd, "redis.cache_ttl_seconds", "cache-ttl-seconds")

	rootCmd.AddCommand(
		newServeCommand(configViper),
		newTokenCommand(configViper),
		newPurgeCommand(configViper),
	)
	return rootCmd
}

func bindFlag(configViper *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := configViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(configViper *viper.Viper, cfgFile string) error {
	if cfgFile == "" {
		return nil
	}
	configViper.SetConfigFile(cfgFile)
	if err := configViper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}
