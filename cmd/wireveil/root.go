package main

import (
	"fmt"
	"os"

	"github.com/flynn/json5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wireveil",
	Short: "Obfuscating UDP relay for WireGuard traffic",
	Long: `wireveil sits on loopback between a WireGuard client (or server)
and a remote peer, transforming every datagram in flight so it is
indistinguishable from a benign UDP flow to on-path inspectors.`,
}

// Execute runs the root command, exiting the process on error, matching
// the standard cobra entry point used throughout the corpus.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON5)")
}

// initConfig establishes viper's view of the configuration: defaults, then
// the config file (if any), then environment variables, with command flags
// layered on top later via viper.BindPFlag in each subcommand's init. This
// is the merge order SPEC_FULL.md's "AMBIENT STACK" promises (file + env +
// flags, flags winning).
//
// viper has no native JSON5 decoder, so the file is parsed with
// github.com/flynn/json5 (the format mwgp itself uses for config, per
// DESIGN.md) and merged into viper as a plain map; from there on, viper
// owns precedence between the file, the environment, and bound flags.
func initConfig() {
	viper.SetEnvPrefix("WIREVEIL")
	viper.AutomaticEnv()

	viper.SetDefault("local_port", 0)
	viper.SetDefault("remote", "")
	viper.SetDefault("key", "")
	viper.SetDefault("max_dummy_data", 0)
	viper.SetDefault("masking_mode", "")
	viper.SetDefault("allow_multiple_peers", false)
	viper.SetDefault("peer_timeout_seconds", 0)

	if cfgFile == "" {
		return
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wireveil: reading config file %s: %s\n", cfgFile, err)
		os.Exit(1)
	}
	var raw map[string]interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "wireveil: parsing config file %s: %s\n", cfgFile, err)
		os.Exit(1)
	}
	if err := viper.MergeConfigMap(raw); err != nil {
		fmt.Fprintf(os.Stderr, "wireveil: merging config file %s: %s\n", cfgFile, err)
		os.Exit(1)
	}
}
