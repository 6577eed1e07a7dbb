package capture

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ngrepDump = `interface: eth0 (10.0.0.0/255.255.255.0)
filter: (ip or ip6) and ( port 5060 )
#
U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060
INVITE sip:bob@example.com SIP/2.0.
Call-ID: abc@10.0.0.1.
CSeq: 1 INVITE.
.

#
U 2024/01/01 10:00:00.000200 10.0.0.2:5060 -> 10.0.0.1:5060
SIP/2.0 100 Trying.
Call-ID: abc@10.0.0.1.
CSeq: 1 INVITE.
T 2024/01/01 10:00:01.000000 10.0.0.3:5060 -> 10.0.0.2:5060
OPTIONS sip:x SIP/2.0.
Call-ID: tcp.
U 2024/01/01 10:00:02.000000 10.0.0.3:5060 -> 10.0.0.2:5060
#
U 2024/01/01 10:00:03.000000 10.0.0.2:5060 -> 10.0.0.1:5060
SIP/2.0 200 OK.
Call-ID: abc@10.0.0.1.
`

func drain(t *testing.T, src Source) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := src.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestTextSource(t *testing.T) {
	recs := drain(t, NewTextSource(strings.NewReader(ngrepDump)))
	require.Len(t, recs, 3, "tcp and empty records are skipped")

	assert.Equal(t, "U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060", recs[0].Header)
	assert.Equal(t, "INVITE sip:bob@example.com SIP/2.0.\nCall-ID: abc@10.0.0.1.\nCSeq: 1 INVITE.\n.\n", recs[0].Payload)

	assert.Equal(t, "SIP/2.0 100 Trying.\nCall-ID: abc@10.0.0.1.\nCSeq: 1 INVITE.\n", recs[1].Payload,
		"record ends at the next header")
	assert.Equal(t, "SIP/2.0 200 OK.\nCall-ID: abc@10.0.0.1.\n", recs[2].Payload)
}

func TestTextSource_Empty(t *testing.T) {
	_, err := NewTextSource(strings.NewReader("interface: lo\n")).Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestTextSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextSource(strings.NewReader(ngrepDump)).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsHeaderLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060", true},
		{"T 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060", true},
		{"U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060 AP", true},
		{"u 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060", false},
		{"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK", false},
		{"U 10:00:00 10.0.0.1:5060 -> 10.0.0.2:5060", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isHeaderLine(tt.line), tt.line)
	}
}
