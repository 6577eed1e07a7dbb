package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/sipflow/internal/config"
	"firestige.xyz/sipflow/internal/options"
	"firestige.xyz/sipflow/internal/sip"
	"firestige.xyz/sipflow/internal/view"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and rc files",
	Long: `Load the configuration file and every rc file it names, then check the
call list layout, without capturing anything.

Examples:
  sipflow validate -c /etc/sipflow/config.yml
  sipflow validate -c config.yml --rc ~/.sipflowrc`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, rcFiles, cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, extraRC []string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.Capture.RCFiles = append(cfg.Capture.RCFiles, extraRC...)

	opts, err := options.FromConfig(cfg)
	if err != nil {
		return err
	}
	cols, _, err := view.LoadColumns(opts)
	if err != nil {
		return err
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = sip.AttrName(c.Attr)
	}
	filter := "off"
	if opts.IsEnabled(options.KeyFilterEnable) {
		filter = "on"
	}

	_, err = fmt.Fprintf(out, "VALID: %d column(s) [%s], filter %s, %d rc file(s)\n",
		len(cols), strings.Join(names, " "), filter, len(cfg.Capture.RCFiles))
	return err
}
