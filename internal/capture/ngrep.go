package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"firestige.xyz/sipflow/internal/metrics"
)

const maxTextLine = 1 << 20

// TextSource reads ngrep "-W byline" output. A record starts at a header
// line and ends at the next header, at a "#" separator or at end of input.
// Anything before the first header is ignored.
type TextSource struct {
	sc      *bufio.Scanner
	closer  io.Closer
	pending string
}

// NewTextSource reads records from r.
func NewTextSource(r io.Reader) *TextSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxTextLine)
	s := &TextSource{sc: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenText opens an ngrep text dump. "-" reads standard input.
func OpenText(path string) (*TextSource, error) {
	if path == "-" {
		return NewTextSource(io.NopCloser(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", path, err)
	}
	return NewTextSource(f), nil
}

// Next implements Source.
func (s *TextSource) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		header := s.pending
		s.pending = ""
		if header == "" {
			line, ok := s.scan()
			if !ok {
				return Record{}, s.end()
			}
			if !isHeaderLine(line) {
				continue
			}
			header = line
		}

		var lines []string
		for {
			line, ok := s.scan()
			if !ok {
				break
			}
			if isHeaderLine(line) {
				s.pending = line
				break
			}
			if isSeparator(line) {
				break
			}
			lines = append(lines, line)
		}
		for len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		switch {
		case !strings.HasPrefix(header, "U "):
			metrics.CaptureSkippedTotal.WithLabelValues(sourceNgrep, reasonNotUDP).Inc()
		case len(lines) == 0:
			metrics.CaptureSkippedTotal.WithLabelValues(sourceNgrep, reasonEmpty).Inc()
		default:
			return Record{Header: header, Payload: strings.Join(lines, "\n") + "\n"}, nil
		}
	}
}

// Close implements Source.
func (s *TextSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *TextSource) scan() (string, bool) {
	if !s.sc.Scan() {
		return "", false
	}
	return s.sc.Text(), true
}

func (s *TextSource) end() error {
	if err := s.sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// isHeaderLine matches "<P> <YYYY/MM/DD> <time> <src> -> <dst>" for any
// single letter protocol tag.
func isHeaderLine(line string) bool {
	f := strings.Fields(line)
	if len(f) < 6 || len(f[0]) != 1 || f[4] != "->" {
		return false
	}
	c := f[0][0]
	return c >= 'A' && c <= 'Z' && strings.Count(f[1], "/") == 2
}

func isSeparator(line string) bool {
	t := strings.TrimSpace(line)
	return t != "" && strings.Trim(t, "#") == ""
}
