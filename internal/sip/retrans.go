package sip

import "strings"

// IsRetransmission reports whether m repeats the payload of the message
// right before it in the same call, line by line and ignoring case.
func (m *Message) IsRetransmission() bool {
	c := m.call
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.prevLocked(m)
	if prev == nil {
		return false
	}
	if err := m.parseLocked(); err != nil {
		return false
	}
	return sameLines(m.lines, prev.lines)
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
