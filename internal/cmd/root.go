package cmd

import (
	"strings"

	"github.com/microkernel-labs/schedswap/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "schedswap",
	Short: "Hot-swappable scheduler simulator",
	Long: `Schedswap simulates a single-core scheduling core whose strategy
(round-robin, static priority, earliest-deadline-first) can be swapped at
runtime without losing tasks, with workload monitoring and an adaptation
engine that recommends or applies switches.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/schedswap/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/schedswap")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SCHEDSWAP")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SCHEDSWAP_SCHEDULER_DEFAULT_STRATEGY for scheduler.default_strategy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
