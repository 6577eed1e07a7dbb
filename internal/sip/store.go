package sip

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"firestige.xyz/sipflow/internal/core"
	"firestige.xyz/sipflow/internal/metrics"
	"firestige.xyz/sipflow/internal/options"
)

// Store is the registry of calls in arrival order.
//
// The store lock only guards the call list and the Call-ID index; it is
// never held while a call lock is taken.
type Store struct {
	opts   Options
	filter *Filter

	mu    sync.RWMutex
	calls []*Call
	byID  map[string]*Call
}

// NewStore creates an empty store reading its settings from opts.
func NewStore(opts Options) *Store {
	return &Store{
		opts:   opts,
		filter: NewFilter(opts),
		byID:   make(map[string]*Call),
	}
}

// Filter returns the visibility filter used for navigation.
func (s *Store) Filter() *Filter {
	return s.filter
}

// AcceptMessage ingests one capture record and returns the stored message.
// A rejected record leaves the store untouched; the returned error wraps
// one of core.ErrCaptureDisabled, core.ErrNoCallID,
// core.ErrMalformedHeader or core.ErrIncompleteCall.
func (s *Store) AcceptMessage(header, payload string) (*Message, error) {
	msg, err := s.acceptMessage(header, payload)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(rejectResult(err)).Inc()
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(metrics.ResultAccepted).Inc()
	return msg, nil
}

func (s *Store) acceptMessage(header, payload string) (*Message, error) {
	if !s.opts.IsEnabled(options.KeyCapture) {
		return nil, core.ErrCaptureDisabled
	}

	callID, ok := callIDFromPayload(payload)
	if !ok {
		return nil, core.ErrNoCallID
	}

	// Reject bad headers before any state is created so a later lazy parse
	// cannot fail on them.
	if _, err := parseHeader(header); err != nil {
		return nil, err
	}

	msg := newMessage(header, payload)

	call := s.FindByCallID(callID)
	if call == nil {
		// Not shared yet, no lock needed.
		if err := msg.parseLocked(); err != nil {
			return nil, err
		}
		// A first message without any method (no request or status line,
		// no CSeq) still opens the call.
		if s.opts.IsEnabled(options.KeyIgnoreIncomplete) {
			if method, ok := msg.attrs.Get(AttrMethod); ok && !isInitialMethod(method) {
				return nil, fmt.Errorf("%w: call %s starts with %q", core.ErrIncompleteCall, callID, method)
			}
		}
		call = s.insert(callID)
	}

	msg.attrs.Set(AttrCallID, callID)

	if err := call.addMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// insert returns the call for callID, appending a new one at the tail when
// none exists.
func (s *Store) insert(callID string) *Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byID[callID]; ok {
		return c
	}
	c := newCall(callID)
	c.index = len(s.calls)
	s.calls = append(s.calls, c)
	s.byID[callID] = c

	metrics.CallsTotal.Inc()
	slog.Debug("call created", "call_id", callID, "calls", len(s.calls))
	return c
}

func isInitialMethod(method string) bool {
	for _, m := range options.InitialMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func rejectResult(err error) string {
	switch {
	case errors.Is(err, core.ErrCaptureDisabled):
		return metrics.ResultCaptureDisabled
	case errors.Is(err, core.ErrNoCallID):
		return metrics.ResultNoCallID
	case errors.Is(err, core.ErrIncompleteCall):
		return metrics.ResultIncomplete
	default:
		return metrics.ResultMalformed
	}
}

// FindByCallID returns the call with the given Call-ID or nil.
func (s *Store) FindByCallID(callID string) *Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[callID]
}

// FindByXCallID returns the first call, in store order, whose XCALLID
// equals xcallID.
func (s *Store) FindByXCallID(xcallID string) *Call {
	for _, c := range s.Calls() {
		if v, ok := c.Attribute(AttrXCallID); ok && v == xcallID {
			return c
		}
	}
	return nil
}

// RelatedCall follows the X-Call-ID link of c in either direction: to the
// call named by its XCALLID, or else to a call whose XCALLID names c.
func (s *Store) RelatedCall(c *Call) *Call {
	if xcallID, ok := c.Attribute(AttrXCallID); ok {
		return s.FindByCallID(xcallID)
	}
	return s.FindByXCallID(c.ID())
}

// Count returns the number of stored calls, hidden ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}

// VisibleCount returns the number of calls the filter does not hide.
func (s *Store) VisibleCount() int {
	n := 0
	for _, c := range s.Calls() {
		if !s.filter.ShouldIgnore(c) {
			n++
		}
	}
	return n
}

// Calls returns a snapshot of all calls in store order.
func (s *Store) Calls() []*Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// VisibleCalls returns the calls the filter does not hide, in store order.
func (s *Store) VisibleCalls() []*Call {
	var out []*Call
	for c := s.NextVisible(nil); c != nil; c = s.NextVisible(c) {
		out = append(out, c)
	}
	return out
}

// NextVisible returns the first visible call after cur, or the first
// visible call of the store when cur is nil.
func (s *Store) NextVisible(cur *Call) *Call {
	i := 0
	if cur != nil {
		pos, ok := s.position(cur)
		if !ok {
			return nil
		}
		i = pos + 1
	}
	for c := s.at(i); c != nil; c = s.at(i) {
		if !s.filter.ShouldIgnore(c) {
			return c
		}
		i++
	}
	return nil
}

// PrevVisible returns the last visible call before cur. A nil cur starts
// from the head of the store, which is returned if visible.
func (s *Store) PrevVisible(cur *Call) *Call {
	i := 0
	if cur != nil {
		pos, ok := s.position(cur)
		if !ok {
			return nil
		}
		i = pos - 1
	}
	for c := s.at(i); c != nil; c = s.at(i) {
		if !s.filter.ShouldIgnore(c) {
			return c
		}
		i--
	}
	return nil
}

func (s *Store) at(i int) *Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.calls) {
		return nil
	}
	return s.calls[i]
}

func (s *Store) position(c *Call) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c.index < 0 || c.index >= len(s.calls) || s.calls[c.index] != c {
		return 0, false
	}
	return c.index, true
}

// Reset drops every call. Calls and messages handed out before remain
// readable but no longer belong to the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.byID = make(map[string]*Call)
}
