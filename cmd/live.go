package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/sipflow/internal/capture"
	"firestige.xyz/sipflow/internal/config"
	"firestige.xyz/sipflow/internal/daemon"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Capture SIP from a network interface",
	Long: `Capture SIP from a network interface and print calls as they appear.

The session runs until interrupted:
  - SIGINT / SIGTERM stop the capture and print the call counters
  - SIGHUP reloads log, capture toggles, filters and ignore lists from --config

Examples:
  sipflow live -i eth0
  sipflow live -i any --bpf "udp port 5060 or udp port 5080"
  sipflow live -i eth0 --engine afpacket --write /tmp/sip.pcap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, opts, err := loadRuntime(configFile, rcFiles)
		if err != nil {
			return err
		}
		applyLiveFlags(cmd, &cfg.Capture)

		src, err := openLive(cfg.Capture, liveFlags.device)
		if err != nil {
			return err
		}
		if cfg.Capture.WriteFile != "" {
			if err := src.SaveTo(cfg.Capture.WriteFile); err != nil {
				src.Close()
				return err
			}
		}

		d := daemon.New(cfg, opts, src, src.Name(), daemon.Options{
			ConfigPath: configFile,
			PIDFile:    liveFlags.pidFile,
			Interval:   liveFlags.interval,
			Out:        cmd.OutOrStdout(),
		})
		if err := d.Start(); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start capture: %w", err)
		}
		return d.Run()
	},
}

var liveFlags struct {
	device   string
	engine   string
	bpf      string
	write    string
	pidFile  string
	interval time.Duration
}

func init() {
	liveCmd.Flags().StringVarP(&liveFlags.device, "interface", "i", "any",
		"interface to capture on")
	liveCmd.Flags().StringVar(&liveFlags.engine, "engine", "",
		"capture engine: pcap or afpacket (overrides capture.engine)")
	liveCmd.Flags().StringVar(&liveFlags.bpf, "bpf", "",
		"BPF filter expression (overrides capture.bpf)")
	liveCmd.Flags().StringVarP(&liveFlags.write, "write", "w", "",
		"also save captured frames to this pcap file")
	liveCmd.Flags().StringVarP(&liveFlags.pidFile, "pidfile", "p", "",
		"PID file path, for sending SIGHUP")
	liveCmd.Flags().DurationVar(&liveFlags.interval, "interval", time.Second,
		"call list refresh period")
}

// applyLiveFlags lets explicit flags override the capture section.
func applyLiveFlags(cmd *cobra.Command, cc *config.CaptureConfig) {
	if cmd.Flags().Changed("engine") {
		cc.Engine = liveFlags.engine
	}
	if cmd.Flags().Changed("bpf") {
		cc.BPF = liveFlags.bpf
	}
	if cmd.Flags().Changed("write") {
		cc.WriteFile = liveFlags.write
	}
}

func openLive(cc config.CaptureConfig, device string) (*capture.PacketSource, error) {
	o := capture.LiveOptions{
		Device:       device,
		Snaplen:      cc.Snaplen,
		Promisc:      cc.Promisc,
		BPF:          cc.BPF,
		Timeout:      time.Duration(cc.TimeoutMs) * time.Millisecond,
		BufferSizeMB: cc.BufferSizeMB,
		FanoutID:     cc.FanoutID,
	}
	switch cc.Engine {
	case "afpacket":
		return capture.OpenAFPacket(o)
	case "pcap", "":
		return capture.OpenLive(o)
	default:
		return nil, fmt.Errorf("unknown capture engine %q", cc.Engine)
	}
}
