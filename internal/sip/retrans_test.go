package sip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetransmission(t *testing.T) {
	s, _ := newTestStore(t)

	first := mustAccept(t, s, testHeader, invitePayload("rt"))
	second := mustAccept(t, s, testHeader, invitePayload("rt"))
	third := mustAccept(t, s, testHeader, responsePayload("rt", "100 Trying", "INVITE"))

	assert.False(t, first.IsRetransmission(), "first message has no predecessor")
	assert.True(t, second.IsRetransmission())
	assert.False(t, third.IsRetransmission())
}

func TestIsRetransmission_CaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t)

	mustAccept(t, s, testHeader, invitePayload("case"))
	shouted := strings.Replace(invitePayload("case"), "INVITE sip:bob@example.com", "invite SIP:BOB@EXAMPLE.COM", 1)
	dup := mustAccept(t, s, testHeader, shouted)

	assert.True(t, dup.IsRetransmission())
}

func TestIsRetransmission_LineCountMismatch(t *testing.T) {
	s, _ := newTestStore(t)

	mustAccept(t, s, testHeader, invitePayload("cnt"))
	longer := mustAccept(t, s, testHeader, invitePayload("cnt")+"a=sendrecv\n")

	assert.False(t, longer.IsRetransmission())
}

func TestIsRetransmission_DetachedMessage(t *testing.T) {
	m := newMessage(testHeader, invitePayload("x"))
	assert.False(t, m.IsRetransmission())
}

func TestIsRetransmission_ComparesImmediatePredecessor(t *testing.T) {
	s, _ := newTestStore(t)

	mustAccept(t, s, testHeader, invitePayload("pred"))
	mustAccept(t, s, testHeader, responsePayload("pred", "100 Trying", "INVITE"))
	again := mustAccept(t, s, testHeader, invitePayload("pred"))

	assert.False(t, again.IsRetransmission())
}
