package capture

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sipflow/internal/core"
	"firestige.xyz/sipflow/internal/options"
	"firestige.xyz/sipflow/internal/sip"
)

var (
	macA = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	macB = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x66}
	t0   = time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.Local)
)

type frame struct {
	ts   time.Time
	data []byte
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func udp4Frame(t *testing.T, src, dst string, payload string) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: 5060, DstPort: 5060}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	return serialize(t, eth, ip, udp, gopacket.Payload(payload))
}

func udp6Frame(t *testing.T, src, dst string, payload string) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: 5062, DstPort: 5060}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv6}
	return serialize(t, eth, ip, udp, gopacket.Payload(payload))
}

func tcpFrame(t *testing.T, payload string) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 9).To4(),
		DstIP:    net.IPv4(10, 0, 0, 2).To4(),
	}
	tcp := &layers.TCP{SrcPort: 5060, DstPort: 5060, Seq: 1, PSH: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

func writePcap(t *testing.T, lt layers.LinkType, frames []frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, lt))
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: fr.ts, CaptureLength: len(fr.data), Length: len(fr.data)}
		require.NoError(t, w.WritePacket(ci, fr.data))
	}
	return path
}

func writePcapng(t *testing.T, frames []frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: fr.ts, CaptureLength: len(fr.data), Length: len(fr.data)}
		require.NoError(t, w.WritePacket(ci, fr.data))
	}
	require.NoError(t, w.Flush())
	return path
}

const (
	sipInvite = "INVITE sip:bob@example.com SIP/2.0\r\nCall-ID: pcap-1@10.0.0.1\r\nFrom: <sip:alice@example.com>\r\nCSeq: 1 INVITE\r\n\r\n"
	sipOK     = "SIP/2.0 200 OK\r\nCall-ID: pcap-1@10.0.0.1\r\nCSeq: 1 INVITE\r\n\r\n"
)

func sampleFrames(t *testing.T) []frame {
	return []frame{
		{t0, udp4Frame(t, "10.0.0.1", "10.0.0.2", sipInvite)},
		{t0.Add(time.Millisecond), tcpFrame(t, sipInvite)},
		{t0.Add(2 * time.Millisecond), udp4Frame(t, "10.0.0.2", "10.0.0.1", "")},
		{t0.Add(3 * time.Millisecond), udp6Frame(t, "2001:db8::2", "2001:db8::1", sipOK)},
	}
}

func TestOpenFile_Pcap(t *testing.T) {
	src, err := OpenFile(writePcap(t, layers.LinkTypeEthernet, sampleFrames(t)))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())

	recs := drain(t, src)
	require.Len(t, recs, 2, "tcp and empty udp frames are skipped")

	assert.Equal(t, "U 2024/01/01 10:00:00.123456 10.0.0.1:5060 -> 10.0.0.2:5060", recs[0].Header)
	assert.Equal(t, sipInvite, recs[0].Payload)
	assert.Equal(t, FormatHeader(t0.Add(3*time.Millisecond), "[2001:db8::2]:5062", "[2001:db8::1]:5060"), recs[1].Header)
	assert.Equal(t, sipOK, recs[1].Payload)
}

func TestOpenFile_Pcapng(t *testing.T) {
	src, err := OpenFile(writePcapng(t, sampleFrames(t)))
	require.NoError(t, err)
	defer src.Close()

	recs := drain(t, src)
	require.Len(t, recs, 2)
	assert.Equal(t, sipInvite, recs[0].Payload)
}

func TestOpenFile_Errors(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = OpenFile(writePcap(t, layers.LinkTypeIEEE802_11, nil))
	assert.True(t, errors.Is(err, core.ErrUnsupportedLinkType))

	garbage := filepath.Join(t.TempDir(), "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("not a capture file"), 0644))
	_, err = OpenFile(garbage)
	assert.Error(t, err)
}

func TestPacketSource_SaveTo(t *testing.T) {
	src, err := OpenFile(writePcap(t, layers.LinkTypeEthernet, sampleFrames(t)))
	require.NoError(t, err)

	saved := filepath.Join(t.TempDir(), "saved.pcap")
	require.NoError(t, src.SaveTo(saved))
	drain(t, src)
	require.NoError(t, src.Close())

	f, err := os.Open(saved)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)

	n := 0
	for {
		if _, _, err := r.ReadPacketData(); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 4, n, "every frame is saved, including skipped ones")
}

func TestIngest_FromPcap(t *testing.T) {
	src, err := OpenFile(writePcap(t, layers.LinkTypeEthernet, sampleFrames(t)))
	require.NoError(t, err)
	defer src.Close()

	store := sip.NewStore(options.Defaults())
	st, err := Ingest(context.Background(), "file", src, store)
	require.NoError(t, err)
	assert.Equal(t, Stats{Records: 2, Accepted: 2}, st)

	call := store.FindByCallID("pcap-1")
	require.NotNil(t, call)
	assert.Equal(t, 2, call.MessageCount())

	from, _ := call.Attribute(sip.AttrSIPFrom)
	assert.Equal(t, "alice@example.com", from)
	src2, _ := call.NextMessage(call.NextMessage(nil)).Attribute(sip.AttrSrc)
	assert.Equal(t, "[2001:db8::2]:5062", src2)
}
