//go:build linux

package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// OpenAFPacket starts a TPACKET_V3 ring capture on an interface.
func OpenAFPacket(o LiveOptions) (*PacketSource, error) {
	bufferMB := o.BufferSizeMB
	if bufferMB <= 0 {
		bufferMB = 8
	}
	frameSize, blockSize, numBlocks, err := ringSize(bufferMB, o.Snaplen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("capture: afpacket ring: %w", err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(o.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(o.timeout()),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("capture: afpacket %s: %w", o.Device, err)
	}

	if o.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, o.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("capture: afpacket fanout %d: %w", o.FanoutID, err)
		}
	}

	if o.BPF != "" {
		prog, err := compileBPF(o.BPF, frameSize)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("capture: afpacket bpf: %w", err)
		}
	}

	closeFn := func() error {
		tp.Close()
		return nil
	}
	return newPacketSource(sourceAFPacket, tpacketReader{tp}, layers.LinkTypeEthernet, o.Snaplen, closeFn)
}

// compileBPF compiles a tcpdump expression with libpcap and converts it to
// raw instructions for the socket filter.
func compileBPF(expr string, snaplen int) ([]bpf.RawInstruction, error) {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snaplen, expr)
	if err != nil {
		return nil, fmt.Errorf("capture: bpf %q: %w", expr, err)
	}
	raw := make([]bpf.RawInstruction, len(insns))
	for i, in := range insns {
		raw[i] = bpf.RawInstruction{Op: in.Code, Jt: in.Jt, Jf: in.Jf, K: in.K}
	}
	return raw, nil
}

type tpacketReader struct {
	tp *afpacket.TPacket
}

func (r tpacketReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
		err = errTimeout
	}
	return data, ci, err
}
