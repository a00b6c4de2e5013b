// Package cmd implements the lobreplay CLI (§4 MODULE BREAKDOWN,
// cmd/lobreplay): a cobra command tree that replays a JSONL tick file
// through the core, grounded on the teacher's cmd/perpdexd/cmd/root.go
// shape but with the full cosmos-sdk server bootstrap dropped — this CLI
// has no blockchain node to start, just a library to drive.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// NewRootCmd constructs the lobreplay command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lobreplay",
		Short: "Replay SZSE/SSE tick files through the lobcore order-book reconstructor",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./lobreplay.yaml)")
	root.AddCommand(newReplayCmd())
	root.AddCommand(newCheckpointCmd())
	return root
}

// initViper loads lobreplay.yaml (or --config) with LOBREPLAY_-prefixed
// environment overrides, the pattern grounded on
// 0xtitan6-polymarket-mm/internal/config/config.go. A missing config file
// is not an error: every setting it could carry also has a CLI flag.
func initViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LOBREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("lobreplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	_ = v.ReadInConfig()
	return v
}
