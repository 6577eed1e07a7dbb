// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"firestige.xyz/sipflow/internal/config"
	logpkg "firestige.xyz/sipflow/internal/log"
	"firestige.xyz/sipflow/internal/options"
)

var (
	// Global flags
	configFile string
	rcFiles    []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sipflow",
	Short: "sipflow - SIP call flow correlator",
	Long: `sipflow groups captured SIP messages into calls by Call-ID.

Messages come from ngrep byline dumps, pcap/pcapng traces or a live
interface. Calls can be listed, filtered and inspected message by message,
with retransmissions marked.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&rcFiles, "rc", nil,
		"extra rc files with set/ignore lines, read after the config")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(attrsCmd)
}

// loadRuntime loads the configuration, initializes logging and builds the
// option store.
func loadRuntime(path string, extraRC []string) (*config.GlobalConfig, *options.Store, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	cfg.Capture.RCFiles = append(cfg.Capture.RCFiles, extraRC...)

	if err := logpkg.Init(cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	opts, err := options.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("runtime options loaded", "config", path, "rc_files", cfg.Capture.RCFiles)
	return cfg, opts, nil
}
