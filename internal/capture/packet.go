package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/sipflow/internal/core"
	"firestige.xyz/sipflow/internal/metrics"
)

// Source labels for metrics.
const (
	sourceNgrep    = "ngrep"
	sourceFile     = "file"
	sourcePcap     = "pcap"
	sourceAFPacket = "afpacket"
)

// Skip reasons for metrics.
const (
	reasonNotIP  = "not_ip"
	reasonNotUDP = "not_udp"
	reasonEmpty  = "empty_payload"
)

// errTimeout marks a live read that returned without a packet.
var errTimeout = errors.New("capture: read timeout")

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// PacketSource turns link layer frames into records. UDP datagrams over
// IPv4 or IPv6 become records; everything else is skipped. IP fragments
// are not reassembled.
type PacketSource struct {
	name     string
	reader   packetReader
	linkType layers.LinkType
	snaplen  int
	closeFn  func() error

	tee     *pcapgo.Writer
	teeFile *os.File
}

func newPacketSource(name string, r packetReader, lt layers.LinkType, snaplen int, closeFn func() error) (*PacketSource, error) {
	switch lt {
	case layers.LinkTypeEthernet, layers.LinkTypeLinuxSLL, layers.LinkTypeRaw,
		layers.LinkTypeNull, layers.LinkTypeLoop:
	default:
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedLinkType, lt)
	}
	return &PacketSource{
		name:     name,
		reader:   r,
		linkType: lt,
		snaplen:  snaplen,
		closeFn:  closeFn,
	}, nil
}

// Name returns the metrics label of the source.
func (s *PacketSource) Name() string {
	return s.name
}

// LinkType returns the link layer of the underlying capture.
func (s *PacketSource) LinkType() layers.LinkType {
	return s.linkType
}

// SaveTo copies every frame read from now on into a pcap file at path.
func (s *PacketSource) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("capture: create %q: %w", path, err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(s.snaplen), s.linkType); err != nil {
		f.Close()
		return fmt.Errorf("capture: write pcap header: %w", err)
	}
	s.tee, s.teeFile = w, f
	slog.Info("saving captured frames", "source", s.name, "path", path)
	return nil
}

// Next implements Source.
func (s *PacketSource) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, errTimeout) {
				continue
			}
			return Record{}, err
		}
		if s.tee != nil {
			if err := s.tee.WritePacket(ci, data); err != nil {
				return Record{}, fmt.Errorf("capture: save frame: %w", err)
			}
		}

		rec, reason := decodeRecord(data, ci, s.linkType)
		if reason != "" {
			metrics.CaptureSkippedTotal.WithLabelValues(s.name, reason).Inc()
			continue
		}
		return rec, nil
	}
}

// Close implements Source.
func (s *PacketSource) Close() error {
	var errs []error
	if s.teeFile != nil {
		errs = append(errs, s.teeFile.Close())
		s.tee, s.teeFile = nil, nil
	}
	if s.closeFn != nil {
		errs = append(errs, s.closeFn())
		s.closeFn = nil
	}
	return errors.Join(errs...)
}

// decodeRecord extracts the UDP payload of a frame. A non-empty reason
// means the frame carries no record.
func decodeRecord(data []byte, ci gopacket.CaptureInfo, lt layers.LinkType) (Record, string) {
	pkt := gopacket.NewPacket(data, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	var src, dst net.IP
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src, dst = nl.SrcIP, nl.DstIP
	case *layers.IPv6:
		src, dst = nl.SrcIP, nl.DstIP
	default:
		return Record{}, reasonNotIP
	}

	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return Record{}, reasonNotUDP
	}
	if len(udp.Payload) == 0 {
		return Record{}, reasonEmpty
	}

	return Record{
		Header:  FormatHeader(ci.Timestamp, endpoint(src, udp.SrcPort), endpoint(dst, udp.DstPort)),
		Payload: string(udp.Payload),
	}, ""
}

func endpoint(ip net.IP, port layers.UDPPort) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}
