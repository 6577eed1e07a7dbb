// Package sip implements SIP capture record parsing and call correlation.
// Records are turned into Messages, grouped into Calls by Call-ID and kept in
// a Store that the display layer navigates. Field extraction is lazy: only
// the first message of each call is parsed on arrival.
package sip

import "strings"

// AttrID identifies a displayable/filterable field of a message or call.
type AttrID int

const (
	AttrSIPFrom AttrID = iota + 1
	AttrSIPTo
	AttrSrc
	AttrDst
	AttrCallID
	AttrXCallID
	AttrTime
	AttrMethod
	AttrRequest
	AttrCSeq
	AttrSDP
	AttrStarting
	AttrMsgCnt
)

// Header describes one catalog entry.
type Header struct {
	ID   AttrID
	Name string // filter/option key
	Desc string // column title
}

var catalog = []Header{
	{ID: AttrSIPFrom, Name: "sipfrom", Desc: "SIP From"},
	{ID: AttrSIPTo, Name: "sipto", Desc: "SIP To"},
	{ID: AttrSrc, Name: "src", Desc: "Source"},
	{ID: AttrDst, Name: "dst", Desc: "Destiny"},
	{ID: AttrCallID, Name: "callid", Desc: "Call-ID"},
	{ID: AttrXCallID, Name: "xcallid", Desc: "X-Call-ID"},
	{ID: AttrTime, Name: "time", Desc: "Time"},
	{ID: AttrMethod, Name: "method", Desc: "Method"},
	{ID: AttrRequest, Name: "request", Desc: "Request"},
	{ID: AttrCSeq, Name: "CSeq", Desc: "CSeq"},
	{ID: AttrSDP, Name: "sdp", Desc: "Has SDP"},
	{ID: AttrStarting, Name: "starting", Desc: "Starting"},
	{ID: AttrMsgCnt, Name: "msgcnt", Desc: "Msgs"},
}

// Attrs returns a copy of the catalog in declaration order.
func Attrs() []Header {
	out := make([]Header, len(catalog))
	copy(out, catalog)
	return out
}

// AttrHeader returns the catalog entry for id.
func AttrHeader(id AttrID) (Header, bool) {
	for _, h := range catalog {
		if h.ID == id {
			return h, true
		}
	}
	return Header{}, false
}

// AttrName returns the option key of id, or "" when id is not cataloged.
func AttrName(id AttrID) string {
	h, _ := AttrHeader(id)
	return h.Name
}

// AttrDescription returns the display title of id, or "".
func AttrDescription(id AttrID) string {
	h, _ := AttrHeader(id)
	return h.Desc
}

// AttrFromName resolves an option key (case-insensitive) to its id.
func AttrFromName(name string) (AttrID, bool) {
	for _, h := range catalog {
		if strings.EqualFold(h.Name, name) {
			return h.ID, true
		}
	}
	return 0, false
}

// String implements fmt.Stringer.
func (id AttrID) String() string {
	if name := AttrName(id); name != "" {
		return name
	}
	return "unknown"
}

// AttrValue is one entry of an AttrSet.
type AttrValue struct {
	ID    AttrID
	Value string
}

// AttrSet holds at most one value per AttrID. The most recently added id
// comes first; overwriting keeps the existing position.
//
// AttrSet is not safe for concurrent use; owners guard it.
type AttrSet struct {
	entries []AttrValue
}

// Set stores value for id.
func (s *AttrSet) Set(id AttrID, value string) {
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Value = value
			return
		}
	}
	s.entries = append(s.entries, AttrValue{})
	copy(s.entries[1:], s.entries)
	s.entries[0] = AttrValue{ID: id, Value: value}
}

// Get returns the value stored for id.
func (s *AttrSet) Get(id AttrID) (string, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e.Value, true
		}
	}
	return "", false
}

// Len returns the number of stored entries.
func (s *AttrSet) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the stored entries, most recent first.
func (s *AttrSet) Entries() []AttrValue {
	out := make([]AttrValue, len(s.entries))
	copy(out, s.entries)
	return out
}
