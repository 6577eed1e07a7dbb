package sip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"firestige.xyz/sipflow/internal/options"
)

const testHeader = "U 2024/01/01 10:00:00.000000 10.0.0.1:5060 -> 10.0.0.2:5060"

func payload(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func invitePayload(callID string) string {
	return payload(
		"INVITE sip:bob@example.com SIP/2.0.",
		"Via: SIP/2.0/UDP 10.0.0.1:5060;branch=z9hG4bK776asdhds.",
		`From: "Alice" <sip:alice@example.com>;tag=1928301774.`,
		"To: <sip:bob@example.com>.",
		"Call-ID: "+callID+"@hostA.",
		"CSeq: 1 INVITE.",
		"Content-Type: application/sdp.",
		".",
		"v=0.",
	)
}

func responsePayload(callID, status, method string) string {
	return payload(
		"SIP/2.0 "+status+".",
		`From: "Alice" <sip:alice@example.com>;tag=1928301774.`,
		"To: <sip:bob@example.com>;tag=a6c85cf.",
		"Call-ID: "+callID+"@hostA.",
		"CSeq: 1 "+method+".",
	)
}

func newTestStore(t *testing.T) (*Store, *options.Store) {
	t.Helper()
	opts := options.Defaults()
	return NewStore(opts), opts
}

func mustAccept(t *testing.T, s *Store, header, body string) *Message {
	t.Helper()
	msg, err := s.AcceptMessage(header, body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}
