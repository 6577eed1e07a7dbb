package sip

import (
	"fmt"
	"strings"
	"time"

	"firestige.xyz/sipflow/internal/core"
	"firestige.xyz/sipflow/internal/metrics"
)

const (
	// HeaderTimeLayout is the capture header timestamp, "<YYYY>/<MM>/<DD> <hh>:<mm>:<ss>.<uuuuuu>".
	HeaderTimeLayout  = "2006/01/02 15:04:05.000000"
	// headerParseLayout also takes unpadded fields; the fraction after the
	// seconds is optional.
	headerParseLayout = "2006/1/2 15:4:5"
	// displayTimeLayout is the TIME attribute format.
	displayTimeLayout = "15:04:05.000000"
)

// Message is one capture record plus the fields extracted from it.
//
// A message is parsed at most once. Once attached to a Call, the parse and
// every read of its fields happen under that call's lock.
type Message struct {
	call    *Call
	pos     int // index inside call.msgs
	header  string
	payload string // raw text, dropped once parsed
	lines   []string
	parsed  bool
	ts      time.Time
	attrs   AttrSet
}

func newMessage(header, payload string) *Message {
	return &Message{header: header, payload: payload}
}

// Call returns the owning call, nil for a message that was never stored.
func (m *Message) Call() *Call {
	return m.call
}

// Header returns the raw capture header line.
func (m *Message) Header() string {
	return m.header
}

func (m *Message) lock() func() {
	if m.call == nil {
		return func() {}
	}
	m.call.mu.Lock()
	return m.call.mu.Unlock
}

// Parse extracts the message fields. Parsing an already parsed message is a
// no-op.
func (m *Message) Parse() error {
	defer m.lock()()
	return m.parseLocked()
}

// IsParsed reports whether the fields have been extracted.
func (m *Message) IsParsed() bool {
	defer m.lock()()
	return m.parsed
}

// Attribute returns the value of one extracted field.
func (m *Message) Attribute(id AttrID) (string, bool) {
	defer m.lock()()
	return m.attrs.Get(id)
}

// Attributes returns a copy of the extracted fields, most recent first.
func (m *Message) Attributes() []AttrValue {
	defer m.lock()()
	return m.attrs.Entries()
}

// Timestamp returns the capture time; zero until parsed.
func (m *Message) Timestamp() time.Time {
	defer m.lock()()
	return m.ts
}

// Lines returns a copy of the payload lines; empty until parsed.
func (m *Message) Lines() []string {
	defer m.lock()()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *Message) parseLocked() error {
	if m.parsed {
		return nil
	}

	hdr, err := parseHeader(m.header)
	if err != nil {
		metrics.ParseTotal.WithLabelValues("error").Inc()
		return err
	}
	m.ts = hdr.ts
	m.attrs.Set(AttrTime, hdr.ts.Format(displayTimeLayout))
	m.attrs.Set(AttrSrc, hdr.src)
	m.attrs.Set(AttrDst, hdr.dst)

	m.lines = splitPayload(m.payload)
	for _, line := range m.lines {
		if line == "" {
			continue
		}
		m.scanLine(line)
	}

	m.payload = ""
	m.parsed = true
	metrics.ParseTotal.WithLabelValues("ok").Inc()
	return nil
}

// scanLine applies the field patterns in priority order. A line feeds at
// most one field.
func (m *Message) scanLine(line string) {
	if v, ok := scanValue(line, "X-Call-ID:", "@\t\r"); ok {
		m.attrs.Set(AttrXCallID, v)
		return
	}
	if v, ok := scanValue(line, "X-CID:", "@\t\r"); ok {
		m.attrs.Set(AttrXCallID, v)
		return
	}
	if v, ok := scanValue(line, "SIP/2.0", "\t\r"); ok {
		if _, set := m.attrs.Get(AttrMethod); !set {
			m.attrs.Set(AttrMethod, v)
		}
		return
	}
	if seq, method, ok := scanCSeq(line); ok {
		if _, set := m.attrs.Get(AttrMethod); !set && method != "" {
			// ACK never opens a transaction of its own
			if !strings.EqualFold(method, "ACK") {
				m.attrs.Set(AttrRequest, "1")
			}
			m.attrs.Set(AttrMethod, method)
		}
		m.attrs.Set(AttrCSeq, seq)
		return
	}
	if v, ok := scanURI(line, "From:"); ok {
		m.attrs.Set(AttrSIPFrom, v)
		return
	}
	if v, ok := scanURI(line, "To:"); ok {
		m.attrs.Set(AttrSIPTo, v)
		return
	}
	if hasPrefixFold(line, "Content-Type: application/sdp") {
		m.attrs.Set(AttrSDP, "1")
	}
}

type captureHeader struct {
	ts  time.Time
	src string
	dst string
}

// parseHeader reads "U <date> <time> <src> -> <dst>". Fields after dst are
// tolerated.
func parseHeader(line string) (captureHeader, error) {
	f := strings.Fields(line)
	if len(f) < 6 || f[0] != "U" || f[4] != "->" {
		return captureHeader{}, fmt.Errorf("%w: %q", core.ErrMalformedHeader, line)
	}
	ts, err := time.ParseInLocation(headerParseLayout, f[1]+" "+f[2], time.Local)
	if err != nil {
		return captureHeader{}, fmt.Errorf("%w: %v", core.ErrMalformedHeader, err)
	}
	return captureHeader{ts: ts, src: f[3], dst: f[5]}, nil
}

// splitPayload splits text into lines, dropping the empty element a final
// newline would produce and one trailing artifact byte per line.
func splitPayload(payload string) []string {
	if payload == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(payload, "\n"), "\n")
	for i, l := range lines {
		lines[i] = stripArtifact(l)
	}
	return lines
}

// stripArtifact removes the '\r' of a CRLF line ending or the '.' ngrep
// prints in its place.
func stripArtifact(line string) string {
	if n := len(line); n > 0 && (line[n-1] == '\r' || line[n-1] == '.') {
		return line[:n-1]
	}
	return line
}

// callIDFromPayload returns the value of the last Call-ID line.
func callIDFromPayload(payload string) (string, bool) {
	const key = "Call-ID:"
	var callID string
	for _, line := range splitPayload(payload) {
		if !hasPrefixFold(line, key) {
			continue
		}
		v := strings.TrimLeft(line[len(key):], " \t")
		if i := strings.IndexAny(v, "@\r"); i >= 0 {
			v = v[:i]
		}
		if v = strings.TrimRight(v, " \t"); v != "" {
			callID = v
		}
	}
	return callID, callID != ""
}

// scanValue returns the text following prefix, up to the first stop byte.
func scanValue(line, prefix, stop string) (string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimLeft(rest, " \t")
	if i := strings.IndexAny(rest, stop); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// scanCSeq reads "CSeq: <seq> <method>". The method may be missing.
func scanCSeq(line string) (seq, method string, ok bool) {
	rest, found := strings.CutPrefix(line, "CSeq:")
	if !found {
		return "", "", false
	}
	rest = strings.TrimLeft(rest, " \t")
	seq = rest
	if i := strings.IndexAny(rest, " \t\r"); i >= 0 {
		seq, rest = rest[:i], strings.TrimLeft(rest[i:], " \t")
		if j := strings.IndexAny(rest, "\t\r"); j >= 0 {
			rest = rest[:j]
		}
		method = rest
	}
	return seq, method, seq != ""
}

// scanURI reads "<prefix> [display] <scheme>:<value>" where value ends at
// '>', ';', tab or CR.
func scanURI(line, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimLeft(rest, " \t")
	i := strings.IndexByte(rest, ':')
	if i <= 0 {
		return "", false
	}
	rest = rest[i+1:]
	if j := strings.IndexAny(rest, ">;\t\r"); j >= 0 {
		rest = rest[:j]
	}
	return rest, rest != ""
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
