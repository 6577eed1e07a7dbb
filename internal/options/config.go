package options

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"firestige.xyz/sipflow/internal/config"
)

// FromConfig builds a store from the defaults, then the YAML configuration,
// then each rc file listed in capture.rc_files. Later sources win.
// Missing rc files are skipped.
func FromConfig(cfg *config.GlobalConfig) (*Store, error) {
	s := Defaults()
	s.Apply(cfg)
	if err := s.ReadFiles(cfg.Capture.RCFiles); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFiles reads each rc file in order, skipping missing ones.
func (s *Store) ReadFiles(paths []string) error {
	for _, path := range paths {
		if err := s.ReadFile(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("rc file not found, skipping", "path", path)
				continue
			}
			return err
		}
		slog.Debug("rc file loaded", "path", path)
	}
	return nil
}

// Apply copies the configuration sections into the store. Empty filter
// strings clear the matching filter.
func (s *Store) Apply(cfg *config.GlobalConfig) {
	s.SetBool(KeyCapture, cfg.Capture.Enabled)
	s.SetBool(KeyIgnoreIncomplete, cfg.Capture.IgnoreIncomplete)

	f := cfg.Filter
	s.SetBool(KeyFilterEnable, f.Enabled)
	for key, value := range map[string]string{
		KeyFilterSIPFrom: f.SIPFrom,
		KeyFilterSIPTo:   f.SIPTo,
		KeyFilterSrc:     f.Src,
		KeyFilterDst:     f.Dst,
	} {
		s.Set(key, value)
	}
	for method, shown := range f.Methods {
		s.SetBool(KeyFilterMethodPrefix+method, shown)
	}

	for field, values := range cfg.Ignore {
		for _, v := range values {
			s.Ignore(field, v)
		}
	}

	if cols := cfg.Display.Columns; len(cols) > 0 {
		s.SetInt("cl.columns", len(cols))
		for i, c := range cols {
			s.Set(fmt.Sprintf("cl.column%d", i), c.Attr)
			// 0 lets the renderer size the column
			s.SetInt(fmt.Sprintf("cl.column%d.width", i), c.Width)
		}
	}
	s.SetBool("cl.autoscroll", cfg.Display.Autoscroll)
}
