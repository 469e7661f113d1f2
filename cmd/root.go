// Package cmd implements the command-line interface for the collector.
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EventMosaicProject/em-collector/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "em-collector",
	Short: "GDELT translation feed collector",
	Long: `Polls the GDELT lastupdate manifest, ingests new translation
archives into object storage, and publishes extracted file URLs to Kafka.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are visible to Viper.
	_ = godotenv.Load()

	if err := initConfig(); err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCollectCommand())
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	// The config file is optional; env vars and defaults cover a full
	// deployment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}
