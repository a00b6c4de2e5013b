package main

import (
	"os"

	"cosmossdk.io/log"

	"github.com/openalpha/lobcore/cmd/lobreplay/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.NewLogger(os.Stderr).Error("lobreplay failed", "err", err)
		os.Exit(1)
	}
}
