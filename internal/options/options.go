// Package options holds the runtime key/value settings consulted by the call
// store and the display layer.
//
// Keys are dotted and case-insensitive ("filter.enable", "cl.column0").
// Besides plain settings the store keeps "ignore" entries: attribute values
// that hide any call carrying them. Settings come from Defaults, from the
// YAML configuration and from rc files with "set" and "ignore" lines.
package options

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Well-known keys.
const (
	KeyCapture          = "sip.capture"
	KeyIgnoreIncomplete = "sip.ignoreincomplete"
	KeyFilterEnable     = "filter.enable"
	KeyFilterSIPFrom    = "filter.sipfrom"
	KeyFilterSIPTo      = "filter.sipto"
	KeyFilterSrc        = "filter.src"
	KeyFilterDst        = "filter.dst"
	// KeyFilterMethodPrefix is followed by the starting method of a call.
	KeyFilterMethodPrefix = "filter."
)

// InitialMethods are the requests that may open a call.
var InitialMethods = []string{"REGISTER", "INVITE", "SUBSCRIBE", "NOTIFY", "OPTIONS", "PUBLISH", "MESSAGE"}

type ignoreEntry struct {
	field string
	value string
}

// Store is a concurrency-safe option registry.
type Store struct {
	mu       sync.RWMutex
	settings map[string]string
	ignores  []ignoreEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{settings: make(map[string]string)}
}

// Defaults returns a store seeded with the built-in settings.
func Defaults() *Store {
	s := New()

	s.Set(KeyCapture, "on")
	s.Set(KeyIgnoreIncomplete, "on")

	// Call list columns
	columns := []struct {
		attr  string
		width int
	}{
		{"sipfrom", 40},
		{"sipto", 40},
		{"msgcnt", 5},
		{"src", 22},
		{"dst", 22},
		{"starting", 15},
	}
	s.SetInt("cl.columns", len(columns))
	for i, c := range columns {
		s.Set(fmt.Sprintf("cl.column%d", i), c.attr)
		s.SetInt(fmt.Sprintf("cl.column%d.width", i), c.width)
	}
	s.Set("cl.autoscroll", "on")
	s.Set("cl.scrollstep", "10")

	s.Set(KeyFilterEnable, "off")
	for _, m := range InitialMethods {
		s.Set(KeyFilterMethodPrefix+m, "on")
	}
	return s
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[normalize(key)] = value
}

// SetInt stores an integer value.
func (s *Store) SetInt(key string, value int) {
	s.Set(key, strconv.Itoa(value))
}

// SetBool stores "on" or "off".
func (s *Store) SetBool(key string, value bool) {
	if value {
		s.Set(key, "on")
		return
	}
	s.Set(key, "off")
}

// Lookup returns the value stored under key.
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[normalize(key)]
	return v, ok
}

// Value returns the value stored under key or "".
func (s *Store) Value(key string) string {
	v, _ := s.Lookup(key)
	return v
}

// IntValue returns the integer value of key, or -1 when the key is unset
// or not a number.
func (s *Store) IntValue(key string) int {
	v, ok := s.Lookup(key)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1
	}
	return n
}

// IsEnabled reports whether key is set to "on" or "1".
func (s *Store) IsEnabled(key string) bool {
	v, ok := s.Lookup(key)
	return ok && (strings.EqualFold(v, "on") || v == "1")
}

// IsDisabled reports whether key is set to "off" or "0". An unset key is
// neither enabled nor disabled.
func (s *Store) IsDisabled(key string) bool {
	v, ok := s.Lookup(key)
	return ok && (strings.EqualFold(v, "off") || v == "0")
}

// Toggle flips key between "on" and "off".
func (s *Store) Toggle(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := normalize(key)
	v := s.settings[k]
	if strings.EqualFold(v, "on") || v == "1" {
		s.settings[k] = "off"
		return
	}
	s.settings[k] = "on"
}

// Ignore hides calls whose field attribute equals value.
func (s *Store) Ignore(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignores = append(s.ignores, ignoreEntry{field: field, value: value})
}

// IsIgnored reports whether value is ignored for field. Both comparisons
// are case-insensitive.
func (s *Store) IsIgnored(field, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.ignores {
		if strings.EqualFold(e.field, field) && strings.EqualFold(e.value, value) {
			return true
		}
	}
	return false
}

// ReadFile loads an rc file. Each non-comment line has the form
//
//	set <key> <value>
//	ignore <field> <value>
//
// Unknown directives and malformed lines are skipped. A missing file is
// reported with an error satisfying errors.Is(err, os.ErrNotExist).
func (s *Store) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("options: open %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "set":
			s.Set(fields[1], fields[2])
		case "ignore":
			s.Ignore(fields[1], fields[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("options: read %q: %w", path, err)
	}
	return nil
}

// Decode copies every setting under prefix into out, a pointer to a struct
// tagged with `mapstructure`. The prefix is stripped from the keys, so
// Decode("cl.", &v) maps "cl.autoscroll" to the field tagged "autoscroll".
// Values are converted with weak typing; "on"/"off" decode as booleans.
func (s *Store) Decode(prefix string, out any) error {
	prefix = normalize(prefix)

	s.mu.RLock()
	input := make(map[string]any)
	for k, v := range s.settings {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			input[rest] = v
		}
	}
	s.mu.RUnlock()

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       switchHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("options: decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("options: decode %q: %w", prefix, err)
	}
	return nil
}

// switchHook turns "on"/"off" strings into booleans.
func switchHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(data.(string)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return data, nil
}
