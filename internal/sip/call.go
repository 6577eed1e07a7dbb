package sip

import (
	"strconv"
	"sync"
)

// Call is the ordered list of messages sharing one Call-ID.
//
// Exported methods take the call lock; helpers suffixed with Locked expect
// the caller to hold it and never lock again.
type Call struct {
	id    string
	index int // position in the store, fixed at insertion

	mu    sync.Mutex
	msgs  []*Message
	attrs AttrSet // call-level overrides, see Attribute
}

func newCall(id string) *Call {
	c := &Call{id: id, index: -1}
	c.attrs.Set(AttrCallID, id)
	return c
}

// ID returns the Call-ID.
func (c *Call) ID() string {
	return c.id
}

// addMessage appends m. The first message of a call is parsed right away,
// later ones on first traversal.
func (c *Call) addMessage(m *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.msgs) == 0 {
		if err := m.parseLocked(); err != nil {
			return err
		}
	}
	m.call = c
	m.pos = len(c.msgs)
	c.msgs = append(c.msgs, m)
	return nil
}

// NextMessage returns the message following after, or the first message
// when after is nil. The returned message is parsed.
func (c *Call) NextMessage(after *Message) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := 0
	if after != nil {
		if after.call != c {
			return nil
		}
		i = after.pos + 1
	}
	return c.parsedAtLocked(i)
}

// PrevMessage returns the message preceding msg, parsed. A nil msg has no
// previous message.
func (c *Call) PrevMessage(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevLocked(msg)
}

func (c *Call) prevLocked(msg *Message) *Message {
	if msg.call != c {
		return nil
	}
	return c.parsedAtLocked(msg.pos - 1)
}

// parsedAtLocked returns the message at i after making sure it is parsed.
// A message that fails to parse is reported as absent.
func (c *Call) parsedAtLocked(i int) *Message {
	if i < 0 || i >= len(c.msgs) {
		return nil
	}
	m := c.msgs[i]
	if err := m.parseLocked(); err != nil {
		return nil
	}
	return m
}

// MessageCount returns the number of messages currently in the call.
func (c *Call) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Messages returns the messages in arrival order, parsing any that were
// not parsed yet. Messages whose parse fails are left out.
func (c *Call) Messages() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Message, 0, len(c.msgs))
	for i := range c.msgs {
		if m := c.parsedAtLocked(i); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// SetAttribute stores a call-level value. Only CALLID and XCALLID
// overrides are consulted by Attribute; other ids always come from the
// first message.
func (c *Call) SetAttribute(id AttrID, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs.Set(id, value)
}

// Attribute returns the call value of id:
//   - MSGCNT is the current message count
//   - STARTING is the METHOD of the first message
//   - CALLID and XCALLID prefer a call-level value
//   - everything else is read from the first message
func (c *Call) Attribute(id AttrID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attributeLocked(id)
}

func (c *Call) attributeLocked(id AttrID) (string, bool) {
	switch id {
	case AttrMsgCnt:
		return strconv.Itoa(len(c.msgs)), true
	case AttrStarting:
		id = AttrMethod
	case AttrCallID, AttrXCallID:
		if v, ok := c.attrs.Get(id); ok {
			return v, true
		}
	}
	first := c.parsedAtLocked(0)
	if first == nil {
		return "", false
	}
	return first.attrs.Get(id)
}

// attributes resolves every cataloged attribute under a single lock.
func (c *Call) attributes() map[AttrID]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[AttrID]string, len(catalog))
	for _, h := range catalog {
		if v, ok := c.attributeLocked(h.ID); ok {
			out[h.ID] = v
		}
	}
	return out
}
