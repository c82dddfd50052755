package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var flagKeyLength int

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a random base64-encoded obfuscation key",
	RunE:  runGenkey,
}

func init() {
	genkeyCmd.Flags().IntVar(&flagKeyLength, "length", 32, "key length in bytes (1-255)")
	rootCmd.AddCommand(genkeyCmd)
}

func runGenkey(cmd *cobra.Command, args []string) error {
	if flagKeyLength < 1 || flagKeyLength > 255 {
		return fmt.Errorf("key length must be between 1 and 255 bytes, got %d", flagKeyLength)
	}
	key := make([]byte, flagKeyLength)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(key))
	return nil
}
