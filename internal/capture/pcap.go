package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// LiveOptions configures interface capture.
type LiveOptions struct {
	Device       string
	Snaplen      int
	Promisc      bool
	BPF          string
	Timeout      time.Duration // poll timeout, bounds how long a cancel waits
	BufferSizeMB int           // afpacket ring size
	FanoutID     uint16        // afpacket fanout group, 0 disables
}

func (o LiveOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return o.Timeout
}

// OpenFile opens a pcap or pcapng trace.
func OpenFile(path string) (*PacketSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: read %q: %w", path, err)
	}

	if bytes.Equal(magic, pcapngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("capture: pcapng %q: %w", path, err)
		}
		return newPacketSource(sourceFile, r, r.LinkType(), 65535, f.Close)
	}

	r, err := pcapgo.NewReader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: pcap %q: %w", path, err)
	}
	return newPacketSource(sourceFile, r, r.LinkType(), int(r.Snaplen()), f.Close)
}

// OpenLive starts a libpcap capture on an interface.
func OpenLive(o LiveOptions) (*PacketSource, error) {
	h, err := pcap.OpenLive(o.Device, int32(o.Snaplen), o.Promisc, o.timeout())
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", o.Device, err)
	}
	if o.BPF != "" {
		if err := h.SetBPFFilter(o.BPF); err != nil {
			h.Close()
			return nil, fmt.Errorf("capture: bpf %q: %w", o.BPF, err)
		}
	}
	closeFn := func() error {
		h.Close()
		return nil
	}
	return newPacketSource(sourcePcap, pcapReader{h}, h.LinkType(), o.Snaplen, closeFn)
}

type pcapReader struct {
	h *pcap.Handle
}

func (r pcapReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.h.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		err = errTimeout
	}
	return data, ci, err
}
