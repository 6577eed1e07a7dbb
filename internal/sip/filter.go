package sip

import (
	"strings"

	"firestige.xyz/sipflow/internal/options"
)

// Options is the read-only view of the runtime settings used by the store
// and its filter. *options.Store implements it.
type Options interface {
	IsEnabled(key string) bool
	Value(key string) string
	IsIgnored(field, value string) bool
}

var _ Options = (*options.Store)(nil)

// Filter decides which calls are hidden from navigation and counts.
type Filter struct {
	opts Options
}

// NewFilter creates a filter reading its settings from opts on every check,
// so changes made while running take effect immediately.
func NewFilter(opts Options) *Filter {
	return &Filter{opts: opts}
}

// ShouldIgnore reports whether c must be hidden. A call is hidden when any
// of its attribute values is listed as ignored, or, with filtering enabled,
// when it fails one of the From/To/source/destination filters or starts
// with a method whose filter toggle is off.
func (f *Filter) ShouldIgnore(c *Call) bool {
	vals := c.attributes()

	for _, h := range catalog {
		if v, ok := vals[h.ID]; ok && f.opts.IsIgnored(h.Name, v) {
			return true
		}
	}

	if !f.opts.IsEnabled(options.KeyFilterEnable) {
		return false
	}

	if filter := f.opts.Value(options.KeyFilterSIPFrom); filter != "" {
		if !strings.Contains(vals[AttrSIPFrom], filter) {
			return true
		}
	}
	if filter := f.opts.Value(options.KeyFilterSIPTo); filter != "" {
		if !strings.Contains(vals[AttrSIPTo], filter) {
			return true
		}
	}
	if filter := f.opts.Value(options.KeyFilterSrc); filter != "" {
		if !hasPrefixFold(vals[AttrSrc], filter) {
			return true
		}
	}
	if filter := f.opts.Value(options.KeyFilterDst); filter != "" {
		if !hasPrefixFold(vals[AttrDst], filter) {
			return true
		}
	}

	return !f.opts.IsEnabled(options.KeyFilterMethodPrefix + vals[AttrStarting])
}
