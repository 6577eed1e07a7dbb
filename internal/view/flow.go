package view

import (
	"fmt"
	"io"
	"strings"

	"firestige.xyz/sipflow/internal/sip"
)

// FlowEntry is one message of a call flow.
type FlowEntry struct {
	Time    string   `yaml:"time"`
	Src     string   `yaml:"src"`
	Dst     string   `yaml:"dst"`
	Method  string   `yaml:"method"`
	CSeq    string   `yaml:"cseq,omitempty"`
	SDP     bool     `yaml:"sdp,omitempty"`
	Retrans bool     `yaml:"retrans,omitempty"`
	Lines   []string `yaml:"lines,omitempty"`
}

// Flow is the message sequence of one call.
type Flow struct {
	CallID  string      `yaml:"callid"`
	Related string      `yaml:"related,omitempty"` // call linked through X-Call-ID
	Entries []FlowEntry `yaml:"messages"`
}

// BuildFlow collects the messages of c in arrival order. With raw set the
// payload lines are included.
func BuildFlow(store *sip.Store, c *sip.Call, raw bool) Flow {
	f := Flow{CallID: c.ID()}
	if rel := store.RelatedCall(c); rel != nil {
		f.Related = rel.ID()
	}

	for m := c.NextMessage(nil); m != nil; m = c.NextMessage(m) {
		get := func(id sip.AttrID) string {
			v, _ := m.Attribute(id)
			return v
		}
		e := FlowEntry{
			Time:    get(sip.AttrTime),
			Src:     get(sip.AttrSrc),
			Dst:     get(sip.AttrDst),
			Method:  get(sip.AttrMethod),
			CSeq:    get(sip.AttrCSeq),
			SDP:     get(sip.AttrSDP) == "1",
			Retrans: m.IsRetransmission(),
		}
		if raw {
			e.Lines = m.Lines()
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

// WriteText prints one line per message, payload lines indented below.
func (f Flow) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Call-ID: %s\n", f.CallID)
	if f.Related != "" {
		fmt.Fprintf(&b, "Related: %s\n", f.Related)
	}
	for _, e := range f.Entries {
		method := e.Method
		if e.SDP {
			method += " (SDP)"
		}
		mark := ""
		if e.Retrans {
			mark = " [retrans]"
		}
		fmt.Fprintf(&b, "%s  %s -> %s  %s%s\n", e.Time, e.Src, e.Dst, method, mark)
		for _, line := range e.Lines {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteYAML prints the flow as a YAML document.
func (f Flow) WriteYAML(w io.Writer) error {
	return encodeYAML(w, f)
}
