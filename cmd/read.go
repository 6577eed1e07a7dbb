package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"firestige.xyz/sipflow/internal/capture"
	"firestige.xyz/sipflow/internal/options"
	"firestige.xyz/sipflow/internal/sip"
	"firestige.xyz/sipflow/internal/view"
)

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Load a capture file and list its calls",
	Long: `Load an ngrep byline dump or a pcap/pcapng trace and print the calls it
contains. With --call the message flow of one call is printed instead.

Examples:
  sipflow read trace.pcap                        # call list
  sipflow read -o yaml trace.pcapng              # call list as YAML
  ngrep -qpt -W byline port 5060 | sipflow read -    # ngrep text from stdin
  sipflow read trace.pcap --call abc123 --raw    # one call with payloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, opts, err := loadRuntime(configFile, rcFiles)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runRead(ctx, opts, args[0], readFlags, cmd.OutOrStdout())
	},
}

type readOptions struct {
	format string
	output string
	callID string
	raw    bool
}

var readFlags readOptions

func init() {
	readCmd.Flags().StringVarP(&readFlags.format, "format", "f", capture.FormatAuto,
		"input format: auto, ngrep or pcap")
	readCmd.Flags().StringVarP(&readFlags.output, "output", "o", "text",
		"output format: text or yaml")
	readCmd.Flags().StringVar(&readFlags.callID, "call", "",
		"print the message flow of this Call-ID")
	readCmd.Flags().BoolVar(&readFlags.raw, "raw", false,
		"include message payloads in the flow")
}

func runRead(ctx context.Context, opts *options.Store, path string, ro readOptions, out io.Writer) error {
	if ro.output != "text" && ro.output != "yaml" {
		return fmt.Errorf("unsupported output %q (must be text or yaml)", ro.output)
	}

	src, name, err := capture.Open(path, ro.format)
	if err != nil {
		return err
	}
	defer src.Close()

	store := sip.NewStore(opts)
	st, err := capture.Ingest(ctx, name, src, store)
	if err != nil {
		return err
	}
	slog.Info("capture loaded", "path", path,
		"records", st.Records, "accepted", st.Accepted, "rejected", st.Rejected, "calls", store.Count())

	if ro.callID != "" {
		call := store.FindByCallID(ro.callID)
		if call == nil {
			return fmt.Errorf("call %q not found", ro.callID)
		}
		flow := view.BuildFlow(store, call, ro.raw)
		if ro.output == "yaml" {
			return flow.WriteYAML(out)
		}
		return flow.WriteText(out)
	}

	list, err := view.BuildCallList(store, opts)
	if err != nil {
		return err
	}
	if ro.output == "yaml" {
		return list.WriteYAML(out)
	}
	return list.WriteText(out)
}
