package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nullforge/wireveil"
)

var (
	flagListen  int
	flagRemote  string
	flagKey     string
	flagMasking string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Start the obfuscating UDP relay",
	RunE:  runRelay,
}

func init() {
	relayCmd.Flags().IntVar(&flagListen, "listen", 0, "local loopback UDP port (0 = ephemeral)")
	relayCmd.Flags().StringVar(&flagRemote, "remote", "", "remote endpoint, host:port")
	relayCmd.Flags().StringVar(&flagKey, "key", "", "base64-encoded obfuscation key")
	relayCmd.Flags().StringVar(&flagMasking, "masking", "", "masking mode: none or stun")

	viper.BindPFlag("local_port", relayCmd.Flags().Lookup("listen"))
	viper.BindPFlag("remote", relayCmd.Flags().Lookup("remote"))
	viper.BindPFlag("key", relayCmd.Flags().Lookup("key"))
	viper.BindPFlag("masking_mode", relayCmd.Flags().Lookup("masking"))

	rootCmd.AddCommand(relayCmd)
}

// loadConfig asks viper for its merged view of the configuration — config
// file (merged in initConfig), WIREVEIL_-prefixed environment variables,
// and these flags, in that ascending order of precedence — and decodes it
// into a Config. This is the file+env+flag merge SPEC_FULL.md's "AMBIENT
// STACK" describes; viper, not this function, owns the precedence rules.
func loadConfig() (*wireveil.Config, error) {
	cfg := &wireveil.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return cfg, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	relay, err := wireveil.NewRelay(cfg)
	if err != nil {
		return err
	}

	if fp, err := cfg.KeyFingerprint(); err == nil {
		log.Printf("[info] wireveil: starting relay, key fingerprint %s", fp)
	}

	port, err := relay.Start()
	if err != nil {
		return err
	}
	log.Printf("[info] wireveil: listening on 127.0.0.1:%d, relaying to %s", port, cfg.RemoteEndpoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("[info] wireveil: shutting down")
	relay.Stop()
	return nil
}
